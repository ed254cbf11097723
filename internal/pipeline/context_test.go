package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContextDerivation(t *testing.T) {
	tests := []struct {
		note         string
		commit       string
		branch       string
		build        int
		expTag       string
		expRef       string
		expDests     []string
	}{
		{
			note:     "release branch publishes latest",
			commit:   "a1b2c3d4",
			branch:   "main",
			build:    42,
			expTag:   "a1b2c3d4-42",
			expRef:   "ns/app:a1b2c3d4-42",
			expDests: []string{"ns/app:a1b2c3d4-42", "ns/app:latest"},
		},
		{
			note:     "feature branch publishes pinned tag only",
			commit:   "a1b2c3d4",
			branch:   "feature-x",
			build:    42,
			expTag:   "a1b2c3d4-42",
			expRef:   "ns/app:a1b2c3d4-42",
			expDests: []string{"ns/app:a1b2c3d4-42"},
		},
		{
			note:     "build number distinguishes rebuilds of a commit",
			commit:   "deadbeef",
			branch:   "main",
			build:    7,
			expTag:   "deadbeef-7",
			expRef:   "ns/app:deadbeef-7",
			expDests: []string{"ns/app:deadbeef-7", "ns/app:latest"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			ctx, err := NewContext(tc.commit, tc.branch, tc.build, "ns", "app", "main")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := ctx.ImageTag(); got != tc.expTag {
				t.Errorf("expected tag %q, got %q", tc.expTag, got)
			}
			if got := ctx.ImageRef(); got != tc.expRef {
				t.Errorf("expected ref %q, got %q", tc.expRef, got)
			}
			if diff := cmp.Diff(tc.expDests, ctx.Destinations()); diff != "" {
				t.Errorf("unexpected destinations (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContextDeterminism(t *testing.T) {
	a, err := NewContext("a1b2c3d4", "main", 42, "ns", "app", "main")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewContext("a1b2c3d4", "main", 42, "ns", "app", "main")
	if err != nil {
		t.Fatal(err)
	}

	if a.ImageRef() != b.ImageRef() {
		t.Fatalf("expected identical refs for identical inputs, got %q and %q", a.ImageRef(), b.ImageRef())
	}
}

func TestContextValidation(t *testing.T) {
	tests := []struct {
		note   string
		commit string
		branch string
		build  int
	}{
		{"commit hash too short", "a1b2c3", "main", 1},
		{"commit hash not hex", "a1b2c3zz", "main", 1},
		{"commit hash uppercase", "A1B2C3D4", "main", 1},
		{"empty branch", "a1b2c3d4", "", 1},
		{"zero build number", "a1b2c3d4", "main", 0},
		{"negative build number", "a1b2c3d4", "main", -3},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			if _, err := NewContext(tc.commit, tc.branch, tc.build, "ns", "app", "main"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestContextReleaseBranchDefault(t *testing.T) {
	ctx, err := NewContext("a1b2c3d4", "main", 1, "ns", "app", "")
	if err != nil {
		t.Fatal(err)
	}

	if len(ctx.Destinations()) != 2 {
		t.Fatalf("expected default release branch to be main, destinations: %v", ctx.Destinations())
	}
}
