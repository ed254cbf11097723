package gitops

import (
	"errors"
	"fmt"
)

// Op identifies the sync step that failed. Every sync failure is fatal for
// the pipeline: an un-synced manifest means a published image the cluster
// does not declare.
type Op string

const (
	OpClone  Op = "clone"
	OpPatch  Op = "patch"
	OpCommit Op = "commit"
	OpPush   Op = "push"
)

// ErrPatternNotFound means the manifest file does not contain the expected
// image line. This signals manifest-repository drift and must be surfaced,
// not silently ignored.
var ErrPatternNotFound = errors.New("image line not found in manifest")

// Error wraps a sync failure with the failing step and repository.
type Error struct {
	Op   Op
	Repo string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest sync: %s: %s: %v", e.Op, e.Repo, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
