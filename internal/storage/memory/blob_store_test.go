package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "professors.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://professors.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "professors.json")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", got)
	}
}

func TestBlobStoreOverwritesAndMisses(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, body := range []string{"[1]", "[2]"} {
		if _, err := store.PutObject(ctx, "courses.json", "", bytes.NewBufferString(body)); err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}
	}
	got, _ := store.GetObject(ctx, "courses.json")
	if string(got) != "[2]" {
		t.Fatalf("expected upsert semantics, got %q", got)
	}
	if _, err := store.GetObject(ctx, "missing.json"); !errors.Is(err, extract.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "courses.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
}
