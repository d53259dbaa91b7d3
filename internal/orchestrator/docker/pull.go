package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"workflowhook/internal/apperrors"

	"github.com/cenkalti/backoff/v4"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"
)

const (
	noSpaceMessage       = "no space left on device"
	unknownManifestError = "manifest unknown"
	notFoundMessage      = "Unable to pull the specified image. Please check the repository and digest."
)

// IsImageID reports whether ref is a bare image id ("sha256:..."). An id
// names an image already on the host and is never pulled. A repository
// pinned by digest ("repo@sha256:...") is still pulled.
func IsImageID(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "sha256:")
}

// PullImage pulls ref with a fixed delay between attempts. Running out of
// disk and unknown repositories are terminal and returned as invalid
// submissions.
func (l *Lifecycle) PullImage(ctx context.Context, ref string) error {
	if IsImageID(ref) {
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		err := l.pullOnce(ctx, ref)
		if err == nil {
			return nil
		}
		if classified := classifyPullError(ref, err); classified != nil {
			return backoff.Permanent(classified)
		}
		l.logger.Warn("Image pull failed", "image", ref, "attempt", attempt, "error", err)
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.PullRetryDelay), uint64(l.cfg.PullAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		if apperrors.IsInvalidSubmission(err) {
			return err
		}
		return apperrors.Internal("docker.pullImage",
			fmt.Errorf("unable to pull image %s after %d try(ies): %w", ref, attempt, err))
	}
	return nil
}

// pullOnce pulls and drains the progress stream. Errors reported inside the
// stream (e.g. a full disk while extracting) surface as errors here.
func (l *Lifecycle) pullOnce(ctx context.Context, ref string) error {
	reader, err := l.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	return jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil)
}

// classifyPullError returns a terminal error for failures retrying cannot
// fix, or nil.
func classifyPullError(ref string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, noSpaceMessage):
		return apperrors.ImageTooLarge(ref, err)
	case strings.Contains(msg, unknownManifestError), cerrdefs.IsNotFound(err):
		return apperrors.InvalidSubmission(notFoundMessage+" "+ref, err)
	default:
		return nil
	}
}
