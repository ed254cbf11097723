// Package gitops re-exports the manifest synchronizer for external use.
// See the internal/gitops package for the sync algorithm and supported
// credential types.
package gitops

import (
	internalgitops "github.com/lodestar-cd/lodestar/internal/gitops"
	"github.com/lodestar-cd/lodestar/internal/secrets"
)

type (
	Syncer = internalgitops.Syncer
	Update = internalgitops.Update
	Result = internalgitops.Result
	Error  = internalgitops.Error
	Op     = internalgitops.Op
)

const (
	OpClone  = internalgitops.OpClone
	OpPatch  = internalgitops.OpPatch
	OpCommit = internalgitops.OpCommit
	OpPush   = internalgitops.OpPush
)

// ErrPatternNotFound is returned when the manifest file lacks the expected
// image line.
var ErrPatternNotFound = internalgitops.ErrPatternNotFound

// New is re-exported from internal/gitops.
var New = internalgitops.New

// SecretProvider is the interface external projects implement to supply
// credentials from their own secret management backends.
type SecretProvider = secrets.Provider
