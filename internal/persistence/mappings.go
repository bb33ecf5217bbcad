package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	mappingKeyPrefix = "session-import-mappings"
	keySeparator     = "::"
)

// MappingKey returns the store key of a schedule's import mappings.
func MappingKey(eventID, scheduleID string) (string, error) {
	for _, part := range []string{eventID, scheduleID} {
		if strings.TrimSpace(part) == "" || strings.Contains(part, keySeparator) {
			return "", ErrInvalidKey
		}
	}
	return mappingKeyPrefix + keySeparator + eventID + keySeparator + scheduleID, nil
}

// MappingStore implements MappingRepository on top of a KeyValueStore.
type MappingStore struct {
	kv KeyValueStore
}

// NewMappingStore wraps kv.
func NewMappingStore(kv KeyValueStore) *MappingStore {
	return &MappingStore{kv: kv}
}

// SaveMappings overwrites the mappings of set's schedule.
func (s *MappingStore) SaveMappings(ctx context.Context, set MappingSet) error {
	key, err := MappingKey(set.EventID, set.ScheduleID)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("persistence: encode mappings: %w", err)
	}
	return s.kv.Put(ctx, key, blob)
}

// LoadMappings returns the stored mappings or ErrNotFound.
func (s *MappingStore) LoadMappings(ctx context.Context, eventID, scheduleID string) (MappingSet, error) {
	key, err := MappingKey(eventID, scheduleID)
	if err != nil {
		return MappingSet{}, err
	}
	blob, err := s.kv.Get(ctx, key)
	if err != nil {
		return MappingSet{}, err
	}
	return decodeMappingSet(blob, eventID, scheduleID)
}

// DeleteMappings drops a schedule's mappings. Missing entries are not an error.
func (s *MappingStore) DeleteMappings(ctx context.Context, eventID, scheduleID string) error {
	key, err := MappingKey(eventID, scheduleID)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ListMappingSets returns every stored set of the event ordered by schedule.
// An empty eventID lists all events.
func (s *MappingStore) ListMappingSets(ctx context.Context, eventID string) ([]MappingSet, error) {
	prefix := mappingKeyPrefix + keySeparator
	if eventID != "" {
		prefix += eventID + keySeparator
	}
	keys, err := s.kv.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	sets := make([]MappingSet, 0, len(keys))
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(key, mappingKeyPrefix+keySeparator), keySeparator)
		if len(parts) != 2 {
			continue
		}
		blob, err := s.kv.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		set, err := decodeMappingSet(blob, parts[0], parts[1])
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// decodeMappingSet accepts both the current envelope and a bare mapping
// array, which is how the first versions stored them.
func decodeMappingSet(blob []byte, eventID, scheduleID string) (MappingSet, error) {
	set := MappingSet{EventID: eventID, ScheduleID: scheduleID}
	trimmed := strings.TrimSpace(string(blob))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(blob, &set.Mappings); err != nil {
			return MappingSet{}, fmt.Errorf("persistence: decode mappings: %w", err)
		}
		return set, nil
	}
	if err := json.Unmarshal(blob, &set); err != nil {
		return MappingSet{}, fmt.Errorf("persistence: decode mappings: %w", err)
	}
	set.EventID, set.ScheduleID = eventID, scheduleID
	return set, nil
}
