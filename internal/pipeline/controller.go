// Package pipeline implements the run controller: a fixed, ordered list of
// stages executed sequentially with fail-fast semantics. Stages never run in
// parallel because each may depend on artifacts produced by the previous one.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/lodestar-cd/lodestar/internal/logging"
	"github.com/lodestar-cd/lodestar/internal/metrics"
	"github.com/lodestar-cd/lodestar/internal/progress"
	"github.com/lodestar-cd/lodestar/internal/secrets"
)

const defaultStageTimeout = 15 * time.Minute

// Controller executes the stage sequence. It does not retry: a failed run
// requires a fresh invocation with a fresh Context.
type Controller struct {
	stages   []Stage
	provider secrets.Provider
	log      *logging.Logger
	bar      *progress.Bar
	timeout  time.Duration
}

func New(provider secrets.Provider, log *logging.Logger) *Controller {
	return &Controller{
		provider: provider,
		log:      log,
		timeout:  defaultStageTimeout,
	}
}

func (c *Controller) WithStages(stages []Stage) *Controller {
	c.stages = stages
	return c
}

// WithTimeout sets the per-stage execution deadline.
func (c *Controller) WithTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *Controller) WithProgress(bar *progress.Bar) *Controller {
	c.bar = bar
	return c
}

// Run executes the stages in order. Execution halts at the first blocking
// failure; the remaining stages are marked skipped. Advisory failures are
// recorded and execution continues.
func (c *Controller) Run(ctx context.Context, run Context) *Outcome {
	outcome := &Outcome{Context: run}
	halted := false

	for _, stage := range c.stages {
		if halted {
			outcome.Results = append(outcome.Results, Result{
				Stage:  stage.Name,
				Kind:   stage.Kind,
				Status: StatusSkipped,
			})
			c.bar.Add(1)
			continue
		}

		result := c.runStage(ctx, stage, run)
		outcome.Results = append(outcome.Results, result)
		c.bar.Add(1)

		if result.Status != StatusFailed {
			if stage.Publishes {
				outcome.Published = run.Destinations()
			}
			continue
		}

		var fetchErr *SecretFetchError
		switch {
		case errors.As(result.Err, &fetchErr):
			// No stage may run without its declared credentials; this halts
			// the run even when the failing stage is advisory.
			c.log.Errorf("%v", result.Err)
			halted = true
		case stage.Kind == Advisory:
			metrics.AdvisoryFinding(stage.Name)
			c.log.Warnf("advisory stage %q reported findings: %v", stage.Name, result.Err)
		default:
			c.log.Errorf("stage %q failed: %v", stage.Name, result.Err)
			halted = true
		}
	}

	c.bar.Finish()
	return outcome
}

func (c *Controller) runStage(ctx context.Context, stage Stage, run Context) Result {
	startTime := time.Now()
	metrics.StageStarted(stage.Name)
	c.log.Debugf("stage %q starting", stage.Name)

	output, err := c.execute(ctx, stage, run)

	result := Result{
		Stage:    stage.Name,
		Kind:     stage.Kind,
		Output:   output,
		Duration: time.Since(startTime),
	}

	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		metrics.StageFailed(stage.Name)
		return result
	}

	result.Status = StatusSucceeded
	metrics.StageSucceeded(stage.Name, startTime)
	c.log.Debugf("stage %q succeeded in %s", stage.Name, result.Duration)
	return result
}

// execute acquires the stage's credentials, runs the body under the stage
// deadline, and guarantees the credentials are destroyed before returning.
func (c *Controller) execute(ctx context.Context, stage Stage, run Context) (string, error) {
	bundle, err := secrets.FetchBundle(ctx, c.provider, stage.Secrets)
	if err != nil {
		return "", &SecretFetchError{Stage: stage.Name, Err: err}
	}
	defer bundle.Destroy()

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := stage.Run(sctx, run, bundle)
	if err != nil {
		return output, &StageExecutionError{Stage: stage.Name, Err: err}
	}

	return output, nil
}
