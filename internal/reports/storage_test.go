package reports

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/lodestar-cd/lodestar/internal/config"
)

func TestDirStorageUpload(t *testing.T) {
	root := t.TempDir()

	storage, err := New(context.Background(), config.ObjectStorage{
		FileSystem: &config.FileSystemStorage{Path: root},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = storage.Upload(context.Background(), bytes.NewReader([]byte(`{"total":1}`)), "app/42/test-report.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bs, err := os.ReadFile(filepath.Join(root, "app", "42", "test-report.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != `{"total":1}` {
		t.Errorf("unexpected contents %q", bs)
	}
}

func TestDirStorageRejectsTraversal(t *testing.T) {
	storage := &dirStorage{root: t.TempDir()}

	err := storage.Upload(context.Background(), bytes.NewReader(nil), "../escape.json")
	if err == nil {
		t.Fatal("expected error for a key escaping the storage root")
	}
}

func TestNewWithoutBackend(t *testing.T) {
	if _, err := New(context.Background(), config.ObjectStorage{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3Upload(t *testing.T) {
	// Set mock AWS credentials to avoid IMDS errors.
	t.Setenv("AWS_ACCESS_KEY_ID", "mock-access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "mock-secret-key")
	t.Setenv("AWS_REGION", "us-east-1")

	mock := s3mem.New()
	if err := mock.CreateBucket("reports"); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(gofakes3.New(mock).Server())
	defer ts.Close()

	ctx := context.Background()

	storage, err := New(ctx, config.ObjectStorage{
		AmazonS3: &config.AmazonS3{
			Bucket: "reports",
			Prefix: "pipelines",
			URL:    ts.URL,
		},
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	err = storage.Upload(ctx, bytes.NewReader([]byte(`{"total":1,"passed":1}`)), "app/42/test-report.json")
	if err != nil {
		t.Fatalf("expected no error while uploading report: %v", err)
	}

	object, err := mock.GetObject("reports", "pipelines/app/42/test-report.json", nil)
	if err != nil {
		t.Fatalf("expected no error while getting object: %v", err)
	}

	contents, err := io.ReadAll(object.Contents)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != `{"total":1,"passed":1}` {
		t.Errorf("unexpected object contents %q", contents)
	}
}
