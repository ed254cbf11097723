package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/lodestar-cd/lodestar/internal/secrets"
)

// Kind classifies a stage's failure semantics. Blocking failures halt the
// run; advisory failures are recorded and the run continues.
type Kind int

const (
	Blocking Kind = iota
	Advisory
)

func (k Kind) String() string {
	if k == Advisory {
		return "advisory"
	}
	return "blocking"
}

// RunFunc is a stage body. It receives the immutable run context and the
// credentials the stage declared; the bundle is destroyed when the stage
// returns. The returned output is recorded for the run summary.
type RunFunc func(ctx context.Context, run Context, creds secrets.Bundle) (output string, err error)

// Stage is one named unit of pipeline work. The stage list is a fixed total
// order for a given pipeline definition; classification and credential needs
// are declared data, not control flow.
type Stage struct {
	Name    string
	Kind    Kind
	Secrets []string // names of the secrets the stage requires

	// Publishes marks the stage that pushes the image destinations; when it
	// succeeds the run records them as published.
	Publishes bool

	Run RunFunc
}

type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result records one stage execution.
type Result struct {
	Stage    string
	Kind     Kind
	Status   Status
	Output   string
	Err      error
	Duration time.Duration
}

// Outcome aggregates a whole run for reporting.
type Outcome struct {
	Context   Context
	Results   []Result
	Published []string // destination references pushed by the publish stage
}

// Succeeded reports whether the run completed without a halting failure.
// Advisory findings do not affect the verdict; a failed credential fetch
// does, regardless of the stage's kind.
func (o *Outcome) Succeeded() bool {
	_, failed := o.FailedStage()
	return !failed
}

// FailedStage names the stage that halted the run, if any.
func (o *Outcome) FailedStage() (string, bool) {
	for _, r := range o.Results {
		if r.halting() {
			return r.Stage, true
		}
	}
	return "", false
}

// Findings returns the advisory failures recorded during the run.
func (o *Outcome) Findings() []Result {
	var findings []Result
	for _, r := range o.Results {
		if r.Status == StatusFailed && r.Kind == Advisory && !r.halting() {
			findings = append(findings, r)
		}
	}
	return findings
}

func (r Result) halting() bool {
	if r.Status != StatusFailed {
		return false
	}
	var fetchErr *SecretFetchError
	return r.Kind == Blocking || errors.As(r.Err, &fetchErr)
}
