package job

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"workflowhook/internal/apperrors"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	zipSuffix       = ".zip"
	trsPathFragment = "/api/ga4gh/v2/tools"

	primaryDescriptor   = "PRIMARY_DESCRIPTOR"
	secondaryDescriptor = "SECONDARY_DESCRIPTOR"
)

// Fetcher materialises workflow templates into a directory. Templates are
// either a zip archive or a GA4GH TRS tool version URL.
type Fetcher struct {
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher whose downloads retry up to retryMax times.
func NewFetcher(timeout time.Duration, retryMax int) *Fetcher {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 30 * time.Second
	client.RetryMax = retryMax
	return &Fetcher{client: client, logger: slog.With("component", "template")}
}

// Fetch writes the template's files into dir. The entry point must be part
// of the template.
func (f *Fetcher) Fetch(ctx context.Context, wf Workflow, dir string) error {
	u, err := url.Parse(wf.URL)
	if err != nil {
		return apperrors.InvalidSubmission(fmt.Sprintf("Invalid workflow URL %s", wf.URL), err)
	}
	switch {
	case strings.HasSuffix(strings.ToLower(u.Path), zipSuffix):
		return f.fetchZip(ctx, wf, dir)
	case strings.Contains(u.Path, trsPathFragment):
		return f.fetchTRS(ctx, wf, dir)
	default:
		return apperrors.InvalidSubmission(
			fmt.Sprintf("Expected template to be a zip archive or TRS files URL, but found %s", u.Path), nil)
	}
}

func (f *Fetcher) fetchZip(ctx context.Context, wf Workflow, dir string) error {
	tmp, err := os.CreateTemp("", "workflow-*.zip")
	if err != nil {
		return apperrors.Internal("template.download", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := f.download(ctx, wf.URL, tmp); err != nil {
		return err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return apperrors.Internal("template.download", err)
	}

	if err := unzip(tmp, size, dir); err != nil {
		return apperrors.InvalidSubmission(fmt.Sprintf("Unable to unzip workflow archive %s", wf.URL), err)
	}
	if _, err := os.Stat(filepath.Join(dir, wf.Entrypoint)); err != nil {
		return apperrors.InvalidSubmission(
			fmt.Sprintf("%s is not in the unzipped archive downloaded from %s", wf.Entrypoint, wf.URL), err)
	}
	f.logger.Debug("Unzipped workflow template", "url", wf.URL, "dir", dir)
	return nil
}

type trsFile struct {
	Type string `json:"file_type"`
	Path string `json:"path"`
}

type trsDescriptor struct {
	Content string `json:"content"`
}

func (f *Fetcher) fetchTRS(ctx context.Context, wf Workflow, dir string) error {
	base := strings.TrimSuffix(wf.URL, "/")

	var files []trsFile
	if err := f.getJSON(ctx, base+"/files", &files); err != nil {
		return err
	}
	for _, file := range files {
		switch file.Type {
		case primaryDescriptor:
			if file.Path != wf.Entrypoint {
				return apperrors.InvalidSubmission(
					fmt.Sprintf("Expected entry point %s but found %s", wf.Entrypoint, file.Path), nil)
			}
		case secondaryDescriptor:
		default:
			return apperrors.InvalidSubmission(fmt.Sprintf("Unexpected file_type %s", file.Type), nil)
		}

		target, err := safeJoin(dir, file.Path)
		if err != nil {
			return apperrors.InvalidSubmission(fmt.Sprintf("Invalid descriptor path %s", file.Path), err)
		}
		var descriptor trsDescriptor
		if err := f.getJSON(ctx, base+"/descriptor/"+file.Path, &descriptor); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return apperrors.Internal("template.write", err)
		}
		if err := os.WriteFile(target, []byte(descriptor.Content), 0o644); err != nil {
			return apperrors.Internal("template.write", err)
		}
	}
	f.logger.Debug("Assembled workflow template", "url", wf.URL, "files", len(files))
	return nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.InvalidSubmission(fmt.Sprintf("Invalid workflow URL %s", rawURL), err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.Internal("template.download", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		remote := apperrors.FromStatus("template.download", resp.StatusCode, rawURL)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, apperrors.InvalidSubmission(fmt.Sprintf("Unable to download workflow template %s", rawURL), remote)
		}
		return nil, apperrors.Internal("template.download", remote)
	}
	return resp, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string, dst io.Writer) error {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return apperrors.Internal("template.download", err)
	}
	return nil
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return apperrors.InvalidSubmission(fmt.Sprintf("Unexpected response from %s", rawURL), err)
	}
	return nil
}

// unzip extracts an archive into dir, rejecting entries that escape it.
func unzip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	for _, entry := range zr.File {
		target, err := safeJoin(dir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			slog.Debug("Skipping archive entry", "name", entry.Name, "mode", entry.Mode())
			continue
		}
		if err := extractFile(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract file: %w", err)
	}
	return out.Close()
}

// safeJoin joins name onto dir and fails if the result leaves dir.
func safeJoin(dir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return filepath.Join(dir, cleaned), nil
}
