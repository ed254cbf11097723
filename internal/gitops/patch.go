package gitops

import (
	"fmt"
	"regexp"
)

// ManifestPatch rewrites the pinned image line for a workload. The manifest
// is expected to contain a single line matching "image: <repository>:<tag>";
// the whole line is replaced, preserving indentation. Applying the patch when
// the file already references the new tag yields identical content.
type ManifestPatch struct {
	Repository string // "namespace/name", without a tag
}

// Apply returns the patched manifest content. ErrPatternNotFound is returned
// when no image line for the repository exists.
func (p ManifestPatch) Apply(content []byte, imageRef string) ([]byte, error) {
	pattern, err := regexp.Compile(fmt.Sprintf(`(?m)^([ \t]*image:[ \t]*)%s:\S+[ \t]*$`, regexp.QuoteMeta(p.Repository)))
	if err != nil {
		return nil, err
	}

	if !pattern.Match(content) {
		return nil, fmt.Errorf("%w: no line matching 'image: %s:<tag>'", ErrPatternNotFound, p.Repository)
	}

	return pattern.ReplaceAll(content, []byte("${1}"+imageRef)), nil
}
