// Package credstore owns the agency credential records and their atomic
// rotation. The AgencyRecord's APIKey field is the single source of truth
// for which credential is currently valid; the apikey reverse index is a
// derived accelerator that authentication must never trust on its own.
package credstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hfi/report-gateway/internal/storage"
)

var (
	// ErrAgencyNotFound indicates the agency does not exist. Terminal for
	// the call; retrying cannot succeed.
	ErrAgencyNotFound = errors.New("credstore: agency not found")

	// ErrAgencyExists indicates a provisioning collision on agency ID.
	ErrAgencyExists = errors.New("credstore: agency already exists")

	// ErrInvalidAPIKey indicates the presented credential does not resolve
	// to any agency whose record lists it as current.
	ErrInvalidAPIKey = errors.New("credstore: invalid api key")
)

const (
	agencyKeyPrefix = "agency:"
	lookupKeyPrefix = "apikey:"
)

// AgencyRecord is the durable record for one tenant.
type AgencyRecord struct {
	AgencyID  string    `json:"agency_id"`
	APIKey    string    `json:"api_key"`
	ClientIDs []string  `json:"client_ids"`
	CreatedAt time.Time `json:"created_at"`
	RotatedAt time.Time `json:"rotated_at,omitempty"`
}

// OwnsClient reports whether clientID belongs to this agency.
func (a *AgencyRecord) OwnsClient(clientID string) bool {
	for _, id := range a.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

// Store manages agency records and the api-key reverse index.
type Store struct {
	store  storage.Store
	logger zerolog.Logger
}

// New creates a credential store on top of the given durable store.
func New(store storage.Store, logger zerolog.Logger) *Store {
	return &Store{
		store:  store,
		logger: logger.With().Str("component", "credstore").Logger(),
	}
}

// newAPIKey generates a fresh credential: 128 bits from crypto/rand via
// uuid v4, hex encoded. Collision probability is treated as negligible and
// no uniqueness check is performed against existing keys.
func newAPIKey() string {
	id := uuid.New()
	return "ak_" + hex.EncodeToString(id[:])
}

// CreateAgency provisions a new agency with its client IDs and returns the
// initial credential. The credential is never retrievable again.
func (s *Store) CreateAgency(ctx context.Context, agencyID string, clientIDs []string) (string, error) {
	apiKey := newAPIKey()
	record := AgencyRecord{
		AgencyID:  agencyID,
		APIKey:    apiKey,
		ClientIDs: clientIDs,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal agency record: %w", err)
	}

	// Reverse entry first, so the key is resolvable the moment the record
	// lands. Same ordering as rotation.
	if err := s.store.Put(ctx, lookupKeyPrefix+apiKey, []byte(agencyID), 0); err != nil {
		return "", err
	}

	won, err := s.store.PutIfAbsent(ctx, agencyKeyPrefix+agencyID, data, 0)
	if err != nil {
		return "", err
	}
	if !won {
		// Roll back the dangling reverse entry; forward-pointer validation
		// would reject it anyway.
		if derr := s.store.Delete(ctx, lookupKeyPrefix+apiKey); derr != nil {
			s.logger.Warn().Err(derr).Str("agency_id", agencyID).
				Msg("failed to delete reverse entry after provisioning conflict")
		}
		return "", ErrAgencyExists
	}

	return apiKey, nil
}

// GetAgency fetches an agency record by ID.
func (s *Store) GetAgency(ctx context.Context, agencyID string) (*AgencyRecord, error) {
	data, err := s.store.Get(ctx, agencyKeyPrefix+agencyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAgencyNotFound
	}
	if err != nil {
		return nil, err
	}

	var record AgencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal agency record: %w", err)
	}
	return &record, nil
}

// Rotate replaces the agency's credential and returns the new one exactly
// once. The write order is: new reverse entry, then the record's APIKey
// pointer, then deletion of the old reverse entry, so a half-finished
// rotation never leaves the new key unresolvable, and a failed final delete
// leaves only an orphaned reverse entry that Authenticate rejects.
func (s *Store) Rotate(ctx context.Context, agencyID string) (string, error) {
	record, err := s.GetAgency(ctx, agencyID)
	if err != nil {
		return "", err
	}

	oldKey := record.APIKey
	newKey := newAPIKey()

	if err := s.store.Put(ctx, lookupKeyPrefix+newKey, []byte(agencyID), 0); err != nil {
		return "", err
	}

	record.APIKey = newKey
	record.RotatedAt = time.Now().UTC()
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal agency record: %w", err)
	}
	if err := s.store.Put(ctx, agencyKeyPrefix+agencyID, data, 0); err != nil {
		return "", err
	}

	// The pointer has flipped; the old key can no longer authenticate even
	// if this delete fails.
	if oldKey != "" {
		if err := s.store.Delete(ctx, lookupKeyPrefix+oldKey); err != nil {
			s.logger.Warn().Err(err).Str("agency_id", agencyID).
				Msg("failed to delete old reverse entry after rotation")
		}
	}

	s.logger.Info().Str("agency_id", agencyID).Msg("api key rotated")
	return newKey, nil
}

// Authenticate resolves an api key to its agency. Presence in the reverse
// index is necessary but not sufficient: the record's APIKey must equal the
// presented key. Stale reverse entries found here are deleted lazily.
func (s *Store) Authenticate(ctx context.Context, apiKey string) (*AgencyRecord, error) {
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}

	data, err := s.store.Get(ctx, lookupKeyPrefix+apiKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	agencyID := string(data)

	record, err := s.GetAgency(ctx, agencyID)
	if errors.Is(err, ErrAgencyNotFound) {
		// Reverse entry pointing at a deleted agency.
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}

	if record.APIKey != apiKey {
		// Orphan left behind by a rotation whose final delete failed.
		if derr := s.store.Delete(ctx, lookupKeyPrefix+apiKey); derr != nil {
			s.logger.Warn().Err(derr).Str("agency_id", agencyID).
				Msg("failed to delete stale reverse entry")
		}
		return nil, ErrInvalidAPIKey
	}

	return record, nil
}
