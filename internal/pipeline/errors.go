package pipeline

import "fmt"

// SecretFetchError means a stage's declared credentials could not be
// retrieved. It is always fatal: no stage may execute without its credentials,
// so the failure aborts the run before the stage body runs, regardless of the
// stage's kind.
type SecretFetchError struct {
	Stage string
	Err   error
}

func (e *SecretFetchError) Error() string {
	return fmt.Sprintf("stage %q: secret fetch: %v", e.Stage, e.Err)
}

func (e *SecretFetchError) Unwrap() error {
	return e.Err
}

// StageExecutionError wraps a stage body failure (non-zero exit, timeout).
// Fatal for blocking stages, recorded only for advisory ones.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}
