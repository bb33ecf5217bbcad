package persistence

import "context"

// KeyValueStore is a flat key to JSON blob store.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MappingRepository stores the import mappings of each (event, schedule).
type MappingRepository interface {
	SaveMappings(ctx context.Context, set MappingSet) error
	LoadMappings(ctx context.Context, eventID, scheduleID string) (MappingSet, error)
	DeleteMappings(ctx context.Context, eventID, scheduleID string) error
	ListMappingSets(ctx context.Context, eventID string) ([]MappingSet, error)
}

// ImportLog keeps the history of sheet uploads.
type ImportLog interface {
	RecordImport(ctx context.Context, record ImportRecord) error
	// ListImports returns the newest records first. An empty scheduleID lists
	// every schedule of the event; limit <= 0 means no limit.
	ListImports(ctx context.Context, eventID, scheduleID string, limit int) ([]ImportRecord, error)
}
