package credstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hfi/report-gateway/internal/storage"
)

func newTestCredStore(t *testing.T) (*Store, *storage.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryStore()
	t.Cleanup(func() { _ = mem.Close() })
	return New(mem, zerolog.Nop()), mem
}

func TestCreateAgency(t *testing.T) {
	s, _ := newTestCredStore(t)
	ctx := context.Background()

	key, err := s.CreateAgency(ctx, "agency-1", []string{"client-1", "client-2"})
	if err != nil {
		t.Fatalf("CreateAgency failed: %v", err)
	}
	if !strings.HasPrefix(key, "ak_") {
		t.Errorf("api key %q missing prefix", key)
	}

	record, err := s.Authenticate(ctx, key)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if record.AgencyID != "agency-1" {
		t.Errorf("AgencyID = %q, want %q", record.AgencyID, "agency-1")
	}
	if !record.OwnsClient("client-2") {
		t.Error("record should own client-2")
	}
	if record.OwnsClient("client-9") {
		t.Error("record should not own client-9")
	}
}

func TestCreateAgency_Duplicate(t *testing.T) {
	s, _ := newTestCredStore(t)
	ctx := context.Background()

	if _, err := s.CreateAgency(ctx, "agency-1", nil); err != nil {
		t.Fatalf("CreateAgency failed: %v", err)
	}
	_, err := s.CreateAgency(ctx, "agency-1", nil)
	if !errors.Is(err, ErrAgencyExists) {
		t.Errorf("duplicate CreateAgency: err = %v, want ErrAgencyExists", err)
	}
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	s, _ := newTestCredStore(t)

	_, err := s.Authenticate(context.Background(), "ak_deadbeef")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey", err)
	}
}

func TestAuthenticate_EmptyKey(t *testing.T) {
	s, _ := newTestCredStore(t)

	_, err := s.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey", err)
	}
}

func TestRotate(t *testing.T) {
	s, _ := newTestCredStore(t)
	ctx := context.Background()

	oldKey, err := s.CreateAgency(ctx, "agency-1", []string{"client-1"})
	if err != nil {
		t.Fatalf("CreateAgency failed: %v", err)
	}

	newKey, err := s.Rotate(ctx, "agency-1")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if newKey == oldKey {
		t.Fatal("rotation returned the old key")
	}

	// Old credential must fail immediately after rotation returns.
	if _, err := s.Authenticate(ctx, oldKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("old key after rotation: err = %v, want ErrInvalidAPIKey", err)
	}

	record, err := s.Authenticate(ctx, newKey)
	if err != nil {
		t.Fatalf("new key after rotation: %v", err)
	}
	if record.AgencyID != "agency-1" {
		t.Errorf("AgencyID = %q, want %q", record.AgencyID, "agency-1")
	}
	if record.RotatedAt.IsZero() {
		t.Error("RotatedAt not set by rotation")
	}
}

func TestRotate_UnknownAgency(t *testing.T) {
	s, _ := newTestCredStore(t)

	_, err := s.Rotate(context.Background(), "ghost")
	if !errors.Is(err, ErrAgencyNotFound) {
		t.Errorf("err = %v, want ErrAgencyNotFound", err)
	}
}

func TestRotate_Repeated(t *testing.T) {
	s, _ := newTestCredStore(t)
	ctx := context.Background()

	key, err := s.CreateAgency(ctx, "agency-1", nil)
	if err != nil {
		t.Fatalf("CreateAgency failed: %v", err)
	}

	keys := map[string]bool{key: true}
	for i := 0; i < 5; i++ {
		newKey, err := s.Rotate(ctx, "agency-1")
		if err != nil {
			t.Fatalf("Rotate %d failed: %v", i, err)
		}
		if keys[newKey] {
			t.Fatalf("Rotate %d returned a previously issued key", i)
		}
		keys[newKey] = true
		key = newKey
	}

	// Only the latest key authenticates.
	for k := range keys {
		_, err := s.Authenticate(ctx, k)
		if k == key && err != nil {
			t.Errorf("current key failed: %v", err)
		}
		if k != key && !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("retired key %q: err = %v, want ErrInvalidAPIKey", k, err)
		}
	}
}

// A reverse entry whose agency record points at a different key must be
// rejected and cleaned up, matching the tolerated-delete-failure policy.
func TestAuthenticate_OrphanedReverseEntry(t *testing.T) {
	s, mem := newTestCredStore(t)
	ctx := context.Background()

	key, err := s.CreateAgency(ctx, "agency-1", nil)
	if err != nil {
		t.Fatalf("CreateAgency failed: %v", err)
	}

	// Simulate a rotation whose final delete was lost: plant a stale
	// reverse entry for a key the record no longer lists.
	if err := mem.Put(ctx, "apikey:ak_stale", []byte("agency-1"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := s.Authenticate(ctx, "ak_stale"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("stale key: err = %v, want ErrInvalidAPIKey", err)
	}

	// The orphan is removed lazily.
	if _, err := mem.Get(ctx, "apikey:ak_stale"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stale reverse entry not cleaned up: err = %v", err)
	}

	// The real key still works.
	if _, err := s.Authenticate(ctx, key); err != nil {
		t.Errorf("current key failed after cleanup: %v", err)
	}
}

func TestNewAPIKey_Shape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := newAPIKey()
		if len(k) != len("ak_")+32 {
			t.Fatalf("key %q has unexpected length %d", k, len(k))
		}
		if seen[k] {
			t.Fatalf("duplicate key generated: %q", k)
		}
		seen[k] = true
	}
}
