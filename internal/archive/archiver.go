// Package archive harvests workflow job logs and stores them in per-submission
// folders.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/job"
)

const (
	logsSuffix        = "_logs"
	maxFileNameLength = 255
)

var fileNamePattern = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// LogSource writes a job's full log and returns its tail.
type LogSource interface {
	Logs(ctx context.Context, h job.Handle, dst io.Writer, maxTail int) (string, error)
}

// Result locates uploaded logs. Both fields are empty when the job has not
// logged anything yet.
type Result struct {
	FolderID string
	FileID   string
	Tail     string
}

// Config holds archiver configuration.
type Config struct {
	TempDir          string // Scratch space for log files and zips
	ShareImmediately bool   // Upload into the submitter-visible folder
	MaxTail          int    // Characters of log tail returned with each upload
}

// Archiver collects job logs and uploads them.
type Archiver struct {
	logs   LogSource
	store  Store
	cfg    Config
	logger *slog.Logger
}

// New creates an Archiver.
func New(logs LogSource, store Store, cfg Config) *Archiver {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxTail <= 0 {
		cfg.MaxTail = 256
	}
	return &Archiver{logs: logs, store: store, cfg: cfg, logger: slog.With("component", "archiver")}
}

// SubmitterFolders returns the shared and locked folders of a submitter,
// creating them if needed.
func (a *Archiver) SubmitterFolders(ctx context.Context, submitterID string) (shared, locked string, err error) {
	if shared, err = a.store.SubmitterFolder(ctx, submitterID, true); err != nil {
		return "", "", err
	}
	if locked, err = a.store.SubmitterFolder(ctx, submitterID, false); err != nil {
		return "", "", err
	}
	return shared, locked, nil
}

// UploadLogs writes the job's log to a temporary file, zips it and uploads it
// into the submission folder, replacing any earlier upload.
func (a *Archiver) UploadLogs(ctx context.Context, h job.Handle, submissionID, submitterID string) (Result, error) {
	prefix := fileNamePattern.ReplaceAllString(submissionID+logsSuffix, "_")
	if len(prefix) > maxFileNameLength-4 {
		prefix = prefix[:maxFileNameLength-4]
	}

	logFile, err := os.CreateTemp(a.cfg.TempDir, prefix+"-*.txt")
	if err != nil {
		return Result{}, apperrors.Internal("archive.logFile", err)
	}
	defer os.Remove(logFile.Name())
	defer logFile.Close()

	tail, err := a.logs.Logs(ctx, h, logFile, a.cfg.MaxTail)
	if err != nil {
		return Result{}, err
	}
	size, err := logFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return Result{}, apperrors.Internal("archive.logFile", err)
	}
	if size == 0 {
		a.logger.Info("Log has no content, nothing to upload", "jobName", h.Name, "submissionId", submissionID)
		return Result{}, nil
	}
	a.logger.Info("Uploading logs", "jobName", h.Name, "submissionId", submissionID, "bytes", size)

	zipped, err := os.CreateTemp(a.cfg.TempDir, prefix+"-*.zip")
	if err != nil {
		return Result{}, apperrors.Internal("archive.zip", err)
	}
	defer os.Remove(zipped.Name())
	defer zipped.Close()

	if _, err := logFile.Seek(0, io.SeekStart); err != nil {
		return Result{}, apperrors.Internal("archive.zip", err)
	}
	zipSize, err := zipTo(zipped, prefix+".txt", logFile)
	if err != nil {
		return Result{}, apperrors.Internal("archive.zip", err)
	}

	folder, err := a.store.SubmissionFolder(ctx, submitterID, submissionID, a.cfg.ShareImmediately)
	if err != nil {
		return Result{}, err
	}
	if _, err := zipped.Seek(0, io.SeekStart); err != nil {
		return Result{}, apperrors.Internal("archive.upload", err)
	}
	fileID, err := a.store.Upload(ctx, folder, prefix+".zip", zipped, zipSize)
	if err != nil {
		return Result{}, err
	}
	a.logger.Info("Archived logs", "submissionId", submissionID, "folder", folder, "file", fileID)
	return Result{FolderID: folder, FileID: fileID, Tail: tail}, nil
}

// zipTo writes a single-entry archive to dst and returns its size.
func zipTo(dst io.WriteSeeker, name string, src io.Reader) (int64, error) {
	zw := zip.NewWriter(dst)
	w, err := zw.Create(name)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(w, src); err != nil {
		return 0, fmt.Errorf("failed to compress %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return dst.Seek(0, io.SeekCurrent)
}
