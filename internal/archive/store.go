package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"workflowhook/internal/apperrors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// lockedSuffix marks the submitter folder visible to administrators only.
const lockedSuffix = "_LOCKED"

var folderNamePattern = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// Store holds archived job output in per-submitter folders. Folder ids are
// opaque to callers.
type Store interface {
	SubmitterFolder(ctx context.Context, submitterID string, shared bool) (string, error)
	SubmissionFolder(ctx context.Context, submitterID, submissionID string, shared bool) (string, error)
	// Upload writes name into the folder, replacing an existing file of the
	// same name, and returns the file id.
	Upload(ctx context.Context, folderID, name string, r io.Reader, size int64) (string, error)
}

func submitterFolderName(submitterID string, shared bool) string {
	if shared {
		return submitterID
	}
	return submitterID + lockedSuffix
}

func submissionFolderName(submissionID string) string {
	return folderNamePattern.ReplaceAllString(submissionID, "_")
}

// LocalStore keeps folders as directories under Root. Shared folders are
// world readable; locked ones are owner only.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) ensure(rel string, shared bool) (string, error) {
	mode := os.FileMode(0o700)
	if shared {
		mode = 0o755
	}
	if err := os.MkdirAll(filepath.Join(s.Root, filepath.FromSlash(rel)), mode); err != nil {
		return "", apperrors.Internal("archive.folder", err)
	}
	return rel, nil
}

func (s *LocalStore) SubmitterFolder(_ context.Context, submitterID string, shared bool) (string, error) {
	return s.ensure(submitterFolderName(submitterID, shared), shared)
}

func (s *LocalStore) SubmissionFolder(_ context.Context, submitterID, submissionID string, shared bool) (string, error) {
	return s.ensure(path.Join(submitterFolderName(submitterID, shared), submissionFolderName(submissionID)), shared)
}

func (s *LocalStore) Upload(_ context.Context, folderID, name string, r io.Reader, _ int64) (string, error) {
	rel := path.Join(folderID, name)
	target := filepath.Join(s.Root, filepath.FromSlash(rel))
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", apperrors.Internal("archive.upload", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", apperrors.Internal("archive.upload", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Internal("archive.upload", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", apperrors.Internal("archive.upload", err)
	}
	return rel, nil
}

// S3Config configures an S3 compatible store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Store keeps folders as key prefixes in one bucket. Each folder has a
// marker object carrying its sharing policy in metadata.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

const folderMarker = ".folder"

// NewS3Store connects to the endpoint and creates the bucket if missing.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) ensure(ctx context.Context, rel string, shared bool) (string, error) {
	folder := path.Join(s.prefix, rel)
	_, err := s.client.PutObject(ctx, s.bucket, path.Join(folder, folderMarker), eofReader{}, 0, minio.PutObjectOptions{
		UserMetadata: map[string]string{"Shared": strconv.FormatBool(shared)},
	})
	if err != nil {
		return "", apperrors.Internal("archive.folder", err)
	}
	return folder, nil
}

func (s *S3Store) SubmitterFolder(ctx context.Context, submitterID string, shared bool) (string, error) {
	return s.ensure(ctx, submitterFolderName(submitterID, shared), shared)
}

func (s *S3Store) SubmissionFolder(ctx context.Context, submitterID, submissionID string, shared bool) (string, error) {
	return s.ensure(ctx, path.Join(submitterFolderName(submitterID, shared), submissionFolderName(submissionID)), shared)
}

func (s *S3Store) Upload(ctx context.Context, folderID, name string, r io.Reader, size int64) (string, error) {
	key := path.Join(folderID, name)
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: "application/zip"}); err != nil {
		return "", apperrors.Internal("archive.upload", err)
	}
	return key, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
