package pipeline

import (
	"cmp"
	"fmt"
	"regexp"
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Context is the immutable per-run record every stage reads. All derived
// values (image tag, destination references) are functions of the fields, so
// re-running the pipeline for the same commit and build number always
// produces the same references.
type Context struct {
	CommitHash  string // short commit hash, 8 hex characters
	Branch      string
	BuildNumber int // monotonic, supplied by the invoking system

	Namespace string
	ImageName string

	// releaseBranch is the branch whose builds additionally publish the
	// mutable "latest" alias.
	releaseBranch string
}

// NewContext validates the run inputs and derives the image coordinates.
func NewContext(commitHash, branch string, buildNumber int, namespace, imageName, releaseBranch string) (Context, error) {
	if !commitHashPattern.MatchString(commitHash) {
		return Context{}, fmt.Errorf("commit hash %q: expected 8 lowercase hex characters", commitHash)
	}
	if branch == "" {
		return Context{}, fmt.Errorf("branch must not be empty")
	}
	if buildNumber <= 0 {
		return Context{}, fmt.Errorf("build number %d: expected a positive integer", buildNumber)
	}
	if namespace == "" || imageName == "" {
		return Context{}, fmt.Errorf("registry namespace and image name must not be empty")
	}

	return Context{
		CommitHash:    commitHash,
		Branch:        branch,
		BuildNumber:   buildNumber,
		Namespace:     namespace,
		ImageName:     imageName,
		releaseBranch: cmp.Or(releaseBranch, "main"),
	}, nil
}

// ImageTag returns the deterministic pinned tag for this run.
func (c Context) ImageTag() string {
	return fmt.Sprintf("%s-%d", c.CommitHash, c.BuildNumber)
}

// Repository returns the "namespace/image" part of the destination reference.
func (c Context) Repository() string {
	return c.Namespace + "/" + c.ImageName
}

// ImageRef returns the fully-qualified pinned image reference. This is the
// only reference the manifest repository is ever pointed at.
func (c Context) ImageRef() string {
	return c.Repository() + ":" + c.ImageTag()
}

// Destinations returns the references the builder publishes. The mutable
// "latest" alias is included if and only if the run is on the release branch.
func (c Context) Destinations() []string {
	dests := []string{c.ImageRef()}
	if c.Branch == c.releaseBranch {
		dests = append(dests, c.Repository()+":latest")
	}
	return dests
}
