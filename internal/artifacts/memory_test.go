package artifacts

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data := []byte("%PDF-1.7 fake report")
	if err := s.Put(ctx, "agency-1/client-1/2026-08.pdf", "application/pdf", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "agency-1/client-1/2026-08.pdf")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want application/pdf", got.ContentType)
	}
	if string(got.Data) != string(data) {
		t.Errorf("Data = %q, want %q", got.Data, data)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "agency-1/client-1/nope.pdf")
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("err = %v, want ErrArtifactNotFound", err)
	}
}

func TestMemoryStore_Overwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Put(ctx, "p", "text/csv", []byte("a,b\n1,2"))
	_ = s.Put(ctx, "p", "text/csv", []byte("a,b\n3,4"))

	got, err := s.Get(ctx, "p")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "a,b\n3,4" {
		t.Errorf("Data = %q after overwrite", got.Data)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Put(ctx, "p", "text/plain", []byte("x"))
	if err := s.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "p"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("err = %v, want ErrArtifactNotFound", err)
	}

	if err := s.Delete(ctx, "p"); err != nil {
		t.Errorf("Delete of absent path: err = %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Put(ctx, "p", "text/plain", []byte("immutable"))
	got, _ := s.Get(ctx, "p")
	got.Data[0] = 'X'

	again, _ := s.Get(ctx, "p")
	if string(again.Data) != "immutable" {
		t.Error("stored artifact mutated through a returned copy")
	}
}
