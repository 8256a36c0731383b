package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	tpotel "github.com/Strob0t/TaskPilot/internal/adapter/otel"
	"github.com/Strob0t/TaskPilot/internal/ciassets"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
)

// workerRepoBranch is the branch worker repositories are written to.
const workerRepoBranch = "main"

// binaryUploadAttempts bounds the per-artifact retry for binary pushes.
const binaryUploadAttempts = 3

// WorkerRepositorySynchronizer pushes the bundled CI assets of a version
// into a project's worker repository. Small configuration files go in one
// batch commit; binary artifacts are uploaded one commit each to stay under
// remote request-size limits. A remote marker file makes re-runs idempotent.
type WorkerRepositorySynchronizer struct {
	store database.Store
}

// NewWorkerRepositorySynchronizer creates a synchronizer.
func NewWorkerRepositorySynchronizer(store database.Store) *WorkerRepositorySynchronizer {
	return &WorkerRepositorySynchronizer{store: store}
}

// UploadCIFiles uploads the version's assets to the repository unless its
// marker already exists remotely (or force is set). Returns the number of
// files actually uploaded, which on partial failure is the progress made
// before the error; re-running is safe.
func (s *WorkerRepositorySynchronizer) UploadCIFiles(ctx context.Context, host repohost.Host, repo *workerrepo.Repository, version string, force bool) (int, error) {
	ctx, span := tpotel.StartSyncSpan(ctx, repo.ID, version)
	defer span.End()

	marker := ciassets.MarkerPath(version)

	if !force {
		exists, err := host.FileExists(ctx, repo.RemoteID, workerRepoBranch, marker)
		if err != nil {
			return 0, fmt.Errorf("check version marker: %w", err)
		}
		if exists {
			slog.Debug("ci version already uploaded",
				"repo", repo.RemotePath, "version", version)
			return 0, nil
		}
	}

	files, err := ciassets.Files(version)
	if err != nil {
		return 0, err
	}

	var configs []repohost.File
	var binaries []ciassets.File
	for _, f := range files {
		if f.Binary {
			binaries = append(binaries, f)
		} else {
			configs = append(configs, repohost.File{Path: f.Path, Content: f.Content})
		}
	}

	uploaded := 0
	if len(configs) > 0 {
		message := fmt.Sprintf("Add CI configuration %s", version)
		if err := host.CommitFiles(ctx, repo.RemoteID, workerRepoBranch, message, configs); err != nil {
			if !benignUploadError(err) {
				return uploaded, fmt.Errorf("commit config files: %w", err)
			}
		} else {
			uploaded += len(configs)
		}
	}

	for _, bin := range binaries {
		if err := s.uploadBinary(ctx, host, repo, version, bin); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	markerCommit := fmt.Sprintf("Mark CI version %s uploaded", version)
	markerFile := repohost.File{Path: marker, Content: []byte(version + "\n")}
	if err := host.UploadFile(ctx, repo.RemoteID, workerRepoBranch, markerCommit, markerFile); err != nil {
		if !benignUploadError(err) {
			return uploaded, fmt.Errorf("write version marker: %w", err)
		}
	}

	slog.Info("ci files uploaded",
		"repo", repo.RemotePath, "version", version, "files", uploaded)
	return uploaded, nil
}

// UpdateVersion rolls the repository onto a new version, leaving old
// versions in place for rollback.
func (s *WorkerRepositorySynchronizer) UpdateVersion(ctx context.Context, host repohost.Host, repo *workerrepo.Repository, version string) error {
	if _, err := s.UploadCIFiles(ctx, host, repo, version, false); err != nil {
		return err
	}
	if err := s.store.UpdateWorkerRepositoryVersion(ctx, repo.ID, version); err != nil {
		return fmt.Errorf("persist version %s: %w", version, err)
	}
	repo.CurrentVersion = version
	return nil
}

// uploadBinary pushes one artifact, retrying transient failures a few times.
func (s *WorkerRepositorySynchronizer) uploadBinary(ctx context.Context, host repohost.Host, repo *workerrepo.Repository, version string, bin ciassets.File) error {
	message := fmt.Sprintf("Add CI artifact %s (%s)", bin.Path, version)
	file := repohost.File{Path: bin.Path, Content: bin.Content}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := host.UploadFile(ctx, repo.RemoteID, workerRepoBranch, message, file)
		if err != nil && benignUploadError(err) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(time.Second)),
		backoff.WithMaxTries(binaryUploadAttempts),
	)
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", bin.Path, err)
	}
	return nil
}

// benignUploadError reports "nothing to push" style rejections: the content
// is already there, so the upload counts as done.
func benignUploadError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "nothing to commit")
}
