package gitops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/lodestar-cd/lodestar/internal/config"
	"github.com/lodestar-cd/lodestar/internal/logging"
)

const manifestPath = "deploy/app.yaml"

// seedRemote creates a bare repository on disk whose main branch holds one
// commit with the given manifest content, mimicking a hosted manifest
// repository reachable over the filesystem.
func seedRemote(t *testing.T, manifest string) string {
	t.Helper()

	workDir := t.TempDir()
	repo, err := git.PlainInitWithOptions(workDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		t.Fatal(err)
	}

	full := filepath.Join(workDir, filepath.FromSlash(manifestPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := worktree.Add(manifestPath); err != nil {
		t.Fatal(err)
	}
	if _, err := worktree.Commit("Add deployment manifest", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@localhost", When: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := git.PlainClone(remoteDir, true, &git.CloneOptions{URL: workDir}); err != nil {
		t.Fatal(err)
	}

	return remoteDir
}

// remoteHead returns the tip commit of main in the bare remote.
func remoteHead(t *testing.T, remoteDir string) *object.Commit {
	t.Helper()

	repo, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatal(err)
	}
	return commit
}

func remoteManifest(t *testing.T, remoteDir string) string {
	t.Helper()

	file, err := remoteHead(t, remoteDir).File(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	contents, err := file.Contents()
	if err != nil {
		t.Fatal(err)
	}
	return contents
}

func newTestSyncer(t *testing.T, remoteDir string) (*Syncer, string) {
	t.Helper()

	clonePath := filepath.Join(t.TempDir(), "clone")
	syncer := New(clonePath, config.Manifests{
		Repo:   remoteDir,
		Branch: "main",
		Path:   manifestPath,
	}, logging.NewNopLogger()).WithRetry(0, 0)

	return syncer, clonePath
}

func TestSyncPatchesAndPushes(t *testing.T) {
	remoteDir := seedRemote(t, "spec:\n  image: ns/app:a1b2c3d4-41\n")
	syncer, clonePath := newTestSyncer(t, remoteDir)

	result, err := syncer.Sync(context.Background(), Update{
		Repository:  "ns/app",
		ImageRef:    "ns/app:a1b2c3d4-42",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: 42,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Changed {
		t.Fatal("expected a change to be pushed")
	}
	if result.PushedRef != "refs/heads/main" {
		t.Errorf("unexpected pushed ref %q", result.PushedRef)
	}
	if !strings.Contains(result.Diff, "+  image: ns/app:a1b2c3d4-42") {
		t.Errorf("diff does not show the new reference:\n%s", result.Diff)
	}

	if got := remoteManifest(t, remoteDir); got != "spec:\n  image: ns/app:a1b2c3d4-42\n" {
		t.Errorf("remote manifest not updated:\n%s", got)
	}

	head := remoteHead(t, remoteDir)
	if !strings.HasPrefix(head.Message, "Deploy ns/app:a1b2c3d4-42") {
		t.Errorf("unexpected commit message: %q", head.Message)
	}
	for _, want := range []string{"Build: #42", "Commit: a1b2c3d4", "Branch: main"} {
		if !strings.Contains(head.Message, want) {
			t.Errorf("commit message missing %q:\n%s", want, head.Message)
		}
	}

	if _, err := os.Stat(clonePath); !os.IsNotExist(err) {
		t.Errorf("clone directory survived the sync: %v", err)
	}
}

func TestSyncAlreadyUpToDate(t *testing.T) {
	remoteDir := seedRemote(t, "spec:\n  image: ns/app:a1b2c3d4-42\n")
	syncer, _ := newTestSyncer(t, remoteDir)

	before := remoteHead(t, remoteDir).Hash

	result, err := syncer.Sync(context.Background(), Update{
		Repository:  "ns/app",
		ImageRef:    "ns/app:a1b2c3d4-42",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: 42,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Changed {
		t.Fatal("expected no change when the manifest already references the image")
	}
	if after := remoteHead(t, remoteDir).Hash; after != before {
		t.Errorf("remote advanced from %s to %s without a change", before, after)
	}
}

func TestSyncRepeatedRunsConverge(t *testing.T) {
	remoteDir := seedRemote(t, "spec:\n  image: ns/app:old\n")
	syncer, _ := newTestSyncer(t, remoteDir)

	up := Update{
		Repository:  "ns/app",
		ImageRef:    "ns/app:a1b2c3d4-42",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: 42,
	}

	first, err := syncer.Sync(context.Background(), up, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed {
		t.Fatal("expected the first sync to push")
	}

	head := remoteHead(t, remoteDir).Hash

	second, err := syncer.Sync(context.Background(), up, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed {
		t.Fatal("expected the second sync to be a no-op")
	}
	if got := remoteHead(t, remoteDir).Hash; got != head {
		t.Errorf("second sync moved the remote from %s to %s", head, got)
	}
}

func TestSyncPatternNotFound(t *testing.T) {
	remoteDir := seedRemote(t, "spec:\n  image: other/service:v1\n")
	syncer, clonePath := newTestSyncer(t, remoteDir)

	before := remoteHead(t, remoteDir).Hash

	_, err := syncer.Sync(context.Background(), Update{
		Repository:  "ns/app",
		ImageRef:    "ns/app:a1b2c3d4-42",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: 42,
	}, nil)

	if !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("expected ErrPatternNotFound, got %v", err)
	}

	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Op != OpPatch {
		t.Fatalf("expected a patch-phase error, got %v", err)
	}

	if after := remoteHead(t, remoteDir).Hash; after != before {
		t.Error("remote must not advance when patching fails")
	}
	if _, err := os.Stat(clonePath); !os.IsNotExist(err) {
		t.Errorf("clone directory survived the failed sync: %v", err)
	}
}

func TestSyncCloneFailure(t *testing.T) {
	syncer, clonePath := newTestSyncer(t, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := syncer.Sync(context.Background(), Update{
		Repository:  "ns/app",
		ImageRef:    "ns/app:a1b2c3d4-42",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: 42,
	}, nil)

	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Op != OpClone {
		t.Fatalf("expected a clone-phase error, got %v", err)
	}
	if _, err := os.Stat(clonePath); !os.IsNotExist(err) {
		t.Errorf("clone directory survived the failed sync: %v", err)
	}
}
