package localfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wadeskhq/wadesk/internal/storage"
)

func TestPutOpenDelete(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if err := p.Put(ctx, "15551234/99001122.jpg", strings.NewReader("payload")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	r, err := p.Open(ctx, "15551234/99001122.jpg")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data: %q", string(data))
	}

	if err := p.Delete(ctx, "15551234/99001122.jpg"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := p.Open(ctx, "15551234/99001122.jpg"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	// Deleting again is a no-op.
	if err := p.Delete(ctx, "15551234/99001122.jpg"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestHostPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"../escape", "/abs/path", "..", ""} {
		if err := p.Put(ctx, key, strings.NewReader("x")); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
