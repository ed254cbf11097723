// Package stages assembles the pipeline's stage descriptors around the
// external tools: image builder, vulnerability scanner, test runner, and the
// manifest syncer. The stage list is the pipeline definition; order,
// blocking-vs-advisory classification and credential needs are declared here,
// not scattered through control flow.
package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lodestar-cd/lodestar/internal/command"
	"github.com/lodestar-cd/lodestar/internal/config"
	"github.com/lodestar-cd/lodestar/internal/gitops"
	"github.com/lodestar-cd/lodestar/internal/logging"
	"github.com/lodestar-cd/lodestar/internal/pipeline"
	"github.com/lodestar-cd/lodestar/internal/reports"
	"github.com/lodestar-cd/lodestar/internal/secrets"
)

// Plan returns the fixed stage sequence for one run. The syncer stage is
// present only when a manifest repository is configured; it is always last
// because the manifest may never declare an image the registry does not
// serve.
func Plan(root *config.Root, log *logging.Logger, store reports.Storage, syncer *gitops.Syncer) []pipeline.Stage {
	plan := []pipeline.Stage{
		ScanSource(root.Pipeline, log),
		Test(root.Pipeline, store, log),
		BuildImage(root, log),
		ScanImage(root.Pipeline, log),
	}

	if syncer != nil {
		plan = append(plan, SyncManifests(root.Manifests, syncer))
	}

	return plan
}

// ScanSource runs the vulnerability scanner against the build context.
// Advisory: findings are reported, never block.
func ScanSource(p *config.Pipeline, log *logging.Logger) pipeline.Stage {
	return pipeline.Stage{
		Name: "scan-source",
		Kind: pipeline.Advisory,
		Run: func(ctx context.Context, _ pipeline.Context, _ secrets.Bundle) (string, error) {
			log.Debugf("scanning source at %s (severity %s)", p.WorkDir, p.Scan.SourceThreshold())
			result, err := command.New(p.Scan.Executable(),
				"fs", "--severity", p.Scan.SourceThreshold(), "--exit-code", "1", "--no-progress", p.WorkDir).
				Run(ctx)
			return result.Combined(), err
		},
	}
}

// Test executes the test suite in the project directory and gates on the
// structured results document the runner writes. The report is additionally
// published to object storage when one is configured.
func Test(p *config.Pipeline, store reports.Storage, log *logging.Logger) pipeline.Stage {
	return pipeline.Stage{
		Name: "test",
		Kind: pipeline.Blocking,
		Run: func(ctx context.Context, run pipeline.Context, _ secrets.Bundle) (string, error) {
			result, err := command.New(p.Test.Command, p.Test.Args...).WithDir(p.WorkDir).Run(ctx)
			if err != nil {
				return result.Combined(), err
			}

			if p.Test.Report == "" {
				return result.Stdout, nil
			}

			report, err := reports.ParseFile(reportPath(p))
			if err != nil {
				return result.Stdout, err
			}

			if store != nil {
				key := fmt.Sprintf("%s/%d/test-report.json", run.ImageName, run.BuildNumber)
				if err := publish(ctx, store, reportPath(p), key); err != nil {
					// Reporting must not fail a run whose tests passed.
					log.Warnf("failed to publish test report: %v", err)
				}
			}

			if err := report.Gate(); err != nil {
				return report.Summary(), err
			}

			return report.Summary(), nil
		},
	}
}

// BuildImage invokes the external builder with every destination reference
// for this run. Registry credentials, when configured, are handed to the
// builder through its environment.
func BuildImage(root *config.Root, log *logging.Logger) pipeline.Stage {
	p := root.Pipeline

	var names []string
	if root.Registry.Credentials != nil {
		names = append(names, root.Registry.Credentials.Name)
	}

	return pipeline.Stage{
		Name:      "build-image",
		Kind:      pipeline.Blocking,
		Secrets:   names,
		Publishes: true,
		Run: func(ctx context.Context, run pipeline.Context, creds secrets.Bundle) (string, error) {
			args := []string{
				"--context", p.WorkDir,
				"--dockerfile", p.Build.ContainerFile(),
			}
			for _, dest := range run.Destinations() {
				args = append(args, "--destination", dest)
			}

			log.Infof("building %s", run.ImageRef())
			result, err := command.New(p.Build.Executable(), args...).
				WithDir(p.WorkDir).
				WithEnv(registryEnv(root.Registry, creds)).
				Run(ctx)
			if err != nil {
				return result.Combined(), err
			}
			return result.Stdout, nil
		},
	}
}

// ScanImage runs the vulnerability scanner against the published image.
// Advisory, like ScanSource, but with the tighter severity threshold.
func ScanImage(p *config.Pipeline, log *logging.Logger) pipeline.Stage {
	return pipeline.Stage{
		Name: "scan-image",
		Kind: pipeline.Advisory,
		Run: func(ctx context.Context, run pipeline.Context, _ secrets.Bundle) (string, error) {
			log.Debugf("scanning image %s (severity %s)", run.ImageRef(), p.Scan.ImageThreshold())
			result, err := command.New(p.Scan.Executable(),
				"image", "--severity", p.Scan.ImageThreshold(), "--exit-code", "1", "--no-progress", run.ImageRef()).
				Run(ctx)
			return result.Combined(), err
		},
	}
}

// SyncManifests is the terminal stage: it propagates the pinned image
// reference into the deployment-manifest repository.
func SyncManifests(m *config.Manifests, syncer *gitops.Syncer) pipeline.Stage {
	var names []string
	if m.Credentials != nil {
		names = append(names, m.Credentials.Name)
	}

	return pipeline.Stage{
		Name:    "sync-manifests",
		Kind:    pipeline.Blocking,
		Secrets: names,
		Run: func(ctx context.Context, run pipeline.Context, creds secrets.Bundle) (string, error) {
			var fields map[string]any
			if m.Credentials != nil {
				fields = creds.Fields(m.Credentials.Name)
			}

			result, err := syncer.Sync(ctx, gitops.Update{
				Repository:  run.Repository(),
				ImageRef:    run.ImageRef(),
				CommitHash:  run.CommitHash,
				Branch:      run.Branch,
				BuildNumber: run.BuildNumber,
			}, fields)
			if err != nil {
				return "", err
			}

			if !result.Changed {
				return "manifest already up to date", nil
			}
			return fmt.Sprintf("pushed %s\n%s", result.PushedRef, result.Diff), nil
		},
	}
}

func reportPath(p *config.Pipeline) string {
	return filepath.Join(p.WorkDir, filepath.FromSlash(p.Test.Report))
}

func registryEnv(r *config.Registry, creds secrets.Bundle) map[string]string {
	if r.Credentials == nil {
		return nil
	}

	fields := creds.Fields(r.Credentials.Name)
	env := make(map[string]string, 2)
	if username, ok := fields["username"].(string); ok {
		env["REGISTRY_USERNAME"] = username
	}
	if password, ok := fields["password"].(string); ok {
		env["REGISTRY_PASSWORD"] = password
	}
	if token, ok := fields["token"].(string); ok {
		env["REGISTRY_TOKEN"] = token
	}
	return env
}

func publish(ctx context.Context, store reports.Storage, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return store.Upload(ctx, f, key)
}
