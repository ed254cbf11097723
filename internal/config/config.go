package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for Lodestar.

const (
	defaultReleaseBranch = "main"
	defaultStageTimeout  = 15 * time.Minute
)

// Root is the top-level configuration structure used by Lodestar.
type Root struct {
	Pipeline  *Pipeline          `json:"pipeline"`
	Registry  *Registry          `json:"registry"`
	Manifests *Manifests         `json:"manifests,omitempty"`
	Reports   *ObjectStorage     `json:"reports,omitempty"`
	History   *History           `json:"history,omitempty"`
	Secrets   map[string]*Secret `json:"secrets,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// It injects resource names into the name-keyed secrets mapping and wires each
// secret reference to its secret so that internal callers can resolve secret
// values as needed.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Secrets {
		raw.Secrets[name] = cmp.Or(raw.Secrets[name], &Secret{})
		raw.Secrets[name].Name = name
	}

	if raw.Registry != nil && raw.Registry.Credentials != nil {
		raw.Registry.Credentials.value = raw.Secrets[raw.Registry.Credentials.Name]
	}

	if raw.Manifests != nil && raw.Manifests.Credentials != nil {
		raw.Manifests.Credentials.value = raw.Secrets[raw.Manifests.Credentials.Name]
	}

	if raw.Reports != nil && raw.Reports.AmazonS3 != nil && raw.Reports.AmazonS3.Credentials != nil {
		raw.Reports.AmazonS3.Credentials.value = raw.Secrets[raw.Reports.AmazonS3.Credentials.Name]
	}

	return nil
}

// Validate checks that the configuration names every resource a pipeline run
// requires. Optional resources (manifests, reports, history) are validated
// only when present.
func (r *Root) Validate() error {
	if r.Pipeline == nil {
		return errors.New("config: 'pipeline' section is required")
	}
	if r.Pipeline.Name == "" {
		return errors.New("config: 'pipeline.name' is required")
	}
	if r.Pipeline.WorkDir == "" {
		return errors.New("config: 'pipeline.workdir' is required")
	}
	if r.Pipeline.Test.Command == "" {
		return errors.New("config: 'pipeline.test.command' is required")
	}
	if r.Registry == nil {
		return errors.New("config: 'registry' section is required")
	}
	if r.Registry.Namespace == "" || r.Registry.Image == "" {
		return errors.New("config: 'registry.namespace' and 'registry.image' are required")
	}
	if r.Manifests != nil {
		if r.Manifests.Repo == "" {
			return errors.New("config: 'manifests.repo' is required")
		}
		if r.Manifests.Path == "" {
			return errors.New("config: 'manifests.path' is required")
		}
	}
	return nil
}

// Pipeline describes the run itself: where the build context lives, which
// branch publishes the release alias, and how the external tools are invoked.
type Pipeline struct {
	Name          string   `json:"name"`
	WorkDir       string   `json:"workdir"`
	ReleaseBranch string   `json:"release_branch,omitempty"`
	StageTimeout  Duration `json:"stage_timeout,omitzero"`
	Build         Build    `json:"build,omitzero"`
	Scan          Scan     `json:"scan,omitzero"`
	Test          Test     `json:"test,omitzero"`
}

// Release returns the branch whose builds additionally publish the mutable
// release alias tag.
func (p *Pipeline) Release() string {
	return cmp.Or(p.ReleaseBranch, defaultReleaseBranch)
}

// Timeout returns the per-stage execution deadline.
func (p *Pipeline) Timeout() time.Duration {
	return cmp.Or(time.Duration(p.StageTimeout), defaultStageTimeout)
}

// Build configures the external image builder invocation.
type Build struct {
	Command    string `json:"command,omitempty"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

func (b Build) Executable() string {
	return cmp.Or(b.Command, "kaniko")
}

func (b Build) ContainerFile() string {
	return cmp.Or(b.Dockerfile, "Dockerfile")
}

// Scan configures the external vulnerability scanner. Scan results are
// advisory and never gate the pipeline.
type Scan struct {
	Command        string `json:"command,omitempty"`
	SourceSeverity string `json:"source_severity,omitempty"`
	ImageSeverity  string `json:"image_severity,omitempty"`
}

func (s Scan) Executable() string {
	return cmp.Or(s.Command, "trivy")
}

func (s Scan) SourceThreshold() string {
	return cmp.Or(s.SourceSeverity, "HIGH,CRITICAL")
}

func (s Scan) ImageThreshold() string {
	return cmp.Or(s.ImageSeverity, "CRITICAL")
}

// Test configures the external test runner and the structured results
// document it writes.
type Test struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Report  string   `json:"report,omitempty"` // path of the results file, relative to the workdir
}

// Registry names the destination image repository. Destinations are
// fully-qualified "namespace/image:tag" references.
type Registry struct {
	Namespace   string     `json:"namespace"`
	Image       string     `json:"image"`
	Credentials *SecretRef `json:"credentials,omitempty"`
}

// Repository returns the "namespace/image" part of the destination reference.
func (r *Registry) Repository() string {
	return r.Namespace + "/" + r.Image
}

// Manifests configures the deployment-manifest repository that the cluster
// reconciler watches.
type Manifests struct {
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch,omitempty"` // primary branch, pushed to
	Path        string     `json:"path"`             // manifest file within the repository, slash-separated
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorEmail string     `json:"author_email,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, no authentication is used; works for
	// local and public repositories only.
}

func (m *Manifests) PrimaryBranch() string {
	return cmp.Or(m.Branch, defaultReleaseBranch)
}

func (m *Manifests) Author() (string, string) {
	return cmp.Or(m.AuthorName, "lodestar"), cmp.Or(m.AuthorEmail, "lodestar@localhost")
}

// History configures the local run-history store.
type History struct {
	Path string `json:"path,omitempty"`
}

// ObjectStorage selects the backend reports are published to.
type ObjectStorage struct {
	AmazonS3   *AmazonS3          `json:"aws,omitempty"`
	FileSystem *FileSystemStorage `json:"filesystem,omitempty"`
}

type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use the default credentials chain: environment
	// variables, shared credentials file, ECS or EC2 instance role.
	URL string `json:"url,omitempty"` // for test purposes
}

// FileSystemStorage publishes reports into a local directory.
type FileSystemStorage struct {
	Path string `json:"path"`
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func ParseFile(filename string) (*Root, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := root.Validate(); err != nil {
		return nil, err
	}

	return &root, nil
}
