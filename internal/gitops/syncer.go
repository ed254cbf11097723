// Package gitops makes the deployment-manifest repository's declared image
// reference match the pipeline's newly published image. The update is
// transactional from the caller's perspective: clone, patch, diff, commit and
// push only when the diff is non-empty, and tear down the local clone on
// every exit path. The Syncer is not thread-safe and no concurrent Sync
// invocations may target the same local path.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/akedrou/textdiff"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/lodestar-cd/lodestar/internal/config"
	"github.com/lodestar-cd/lodestar/internal/logging"
	"github.com/lodestar-cd/lodestar/internal/metrics"
)

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/issues/64
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

// Update describes the desired manifest state for one pipeline run.
type Update struct {
	Repository  string // "namespace/name", without a tag
	ImageRef    string // pinned reference the manifest must declare
	CommitHash  string
	Branch      string
	BuildNumber int
}

// Result reports what a Sync did. Changed is false when the manifest already
// referenced the image and no commit or push happened.
type Result struct {
	Changed       bool
	CommitMessage string
	PushedRef     string
	Diff          string // unified diff of the manifest file, for reporting
}

// Syncer owns the local clone directory for the duration of one Sync call.
type Syncer struct {
	path       string
	config     config.Manifests
	log        *logging.Logger
	retries    int
	retryDelay time.Duration
}

// New creates a Syncer using path as the local clone directory. The caller
// must guarantee the path is not shared with another Syncer.
func New(path string, cfg config.Manifests, log *logging.Logger) *Syncer {
	return &Syncer{
		path:       path,
		config:     cfg,
		log:        log,
		retries:    2,
		retryDelay: 2 * time.Second,
	}
}

// WithRetry overrides the bounded retry policy used for the idempotent
// network operations (clone, push).
func (s *Syncer) WithRetry(n int, delay time.Duration) *Syncer {
	s.retries = n
	s.retryDelay = delay
	return s
}

// Sync drives the manifest repository to declare up.ImageRef. It must only be
// invoked after the image has been published: the manifest may never point at
// a reference the registry does not serve.
func (s *Syncer) Sync(ctx context.Context, up Update, creds map[string]any) (Result, error) {
	startTime := time.Now()
	metrics.ManifestSyncStarted(s.config.Repo)

	result, err := s.sync(ctx, up, creds)

	// Guaranteed cleanup: the clone directory never survives the call.
	if rmErr := os.RemoveAll(s.path); rmErr != nil {
		s.log.Warnf("failed to remove clone directory %q: %v", s.path, rmErr)
	}

	switch {
	case err != nil:
		metrics.ManifestSyncFailed(s.config.Repo)
		return Result{}, err
	case result.Changed:
		metrics.ManifestSyncSucceeded(s.config.Repo, startTime)
	default:
		metrics.ManifestSyncNoChange(s.config.Repo)
	}

	return result, nil
}

func (s *Syncer) sync(ctx context.Context, up Update, creds map[string]any) (Result, error) {
	// A stale clone from an aborted earlier run cannot be trusted; start over.
	if err := os.RemoveAll(s.path); err != nil {
		return Result{}, &Error{Op: OpClone, Repo: s.config.Repo, Err: err}
	}

	auth, err := authMethod(creds)
	if err != nil {
		return Result{}, &Error{Op: OpClone, Repo: s.config.Repo, Err: err}
	}

	branch := s.config.PrimaryBranch()

	var repository *git.Repository
	err = s.retry(ctx, func() error {
		// A failed attempt may leave a partial clone behind.
		if rmErr := os.RemoveAll(s.path); rmErr != nil {
			return rmErr
		}
		var cloneErr error
		repository, cloneErr = git.PlainCloneContext(ctx, s.path, false, &git.CloneOptions{
			URL:           s.config.Repo,
			Auth:          auth,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
		})
		return cloneErr
	})
	if err != nil {
		return Result{}, &Error{Op: OpClone, Repo: s.config.Repo, Err: err}
	}

	manifest := filepath.Join(s.path, filepath.FromSlash(s.config.Path))
	old, err := os.ReadFile(manifest)
	if err != nil {
		return Result{}, &Error{Op: OpPatch, Repo: s.config.Repo, Err: err}
	}

	patched, err := ManifestPatch{Repository: up.Repository}.Apply(old, up.ImageRef)
	if err != nil {
		return Result{}, &Error{Op: OpPatch, Repo: s.config.Repo, Err: err}
	}

	if bytes.Equal(old, patched) {
		s.log.Debugf("manifest %q already references %s", s.config.Path, up.ImageRef)
		return Result{}, nil
	}

	diff := textdiff.Unified("a/"+s.config.Path, "b/"+s.config.Path, string(old), string(patched))

	if err := os.WriteFile(manifest, patched, fileMode(manifest)); err != nil {
		return Result{}, &Error{Op: OpCommit, Repo: s.config.Repo, Err: err}
	}

	worktree, err := repository.Worktree()
	if err != nil {
		return Result{}, &Error{Op: OpCommit, Repo: s.config.Repo, Err: err}
	}

	if _, err := worktree.Add(s.config.Path); err != nil {
		return Result{}, &Error{Op: OpCommit, Repo: s.config.Repo, Err: err}
	}

	name, email := s.config.Author()
	message := commitMessage(up)
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	}); err != nil {
		return Result{}, &Error{Op: OpCommit, Repo: s.config.Repo, Err: err}
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = s.retry(ctx, func() error {
		pushErr := repository.PushContext(ctx, &git.PushOptions{
			RemoteName: "origin",
			Auth:       auth,
			RefSpecs:   []gitconfig.RefSpec{refSpec},
		})
		if pushErr == git.NoErrAlreadyUpToDate {
			return nil
		}
		return pushErr
	})
	if err != nil {
		return Result{}, &Error{Op: OpPush, Repo: s.config.Repo, Err: err}
	}

	s.log.Infof("manifest %q now declares %s", s.config.Path, up.ImageRef)
	return Result{
		Changed:       true,
		CommitMessage: message,
		PushedRef:     "refs/heads/" + branch,
		Diff:          diff,
	}, nil
}

// retry runs op up to retries+1 times with a fixed delay. Only used for
// idempotent network operations.
func (s *Syncer) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil || attempt >= s.retries {
			return err
		}
		s.log.Warnf("sync %q: attempt %d failed, retrying in %s: %v", s.config.Repo, attempt+1, s.retryDelay, err)

		select {
		case <-time.After(s.retryDelay):
		case <-ctx.Done():
			return err
		}
	}
}

func commitMessage(up Update) string {
	return fmt.Sprintf("Deploy %s\n\nBuild: #%d\nCommit: %s\nBranch: %s\n",
		up.ImageRef, up.BuildNumber, up.CommitHash, up.Branch)
}

func fileMode(path string) fs.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
