// Package reports handles the structured results document the test runner
// writes, and publishes run artifacts to object storage for external
// reporting.
package reports

import (
	"encoding/json"
	"fmt"
	"os"
)

// Report is the results document consumed for pass/fail gating.
type Report struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

type Failure struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

func Parse(bs []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(bs, &r); err != nil {
		return nil, fmt.Errorf("failed to decode test report: %w", err)
	}
	return &r, nil
}

func ParseFile(path string) (*Report, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test report %s: %w", path, err)
	}
	return Parse(bs)
}

// Gate returns an error when the report contains failures.
func (r *Report) Gate() error {
	if r.Failed == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d of %d tests failed", r.Failed, r.Total)
	if len(r.Failures) > 0 {
		msg += fmt.Sprintf(" (first: %s)", r.Failures[0].Name)
	}
	return fmt.Errorf("%s", msg)
}

func (r *Report) Summary() string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped", r.Passed, r.Failed, r.Skipped)
}
