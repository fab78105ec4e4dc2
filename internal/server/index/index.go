// Package index defines the search-index side channel. Entry and resource
// events are forwarded here after commit; the default implementation only
// logs, a real deployment plugs in a search engine client.
package index

import (
	"context"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Service receives index maintenance calls driven by committed events.
type Service interface {
	// CreateIndex prepares an index for a newly created resource.
	CreateIndex(ctx context.Context, resourceID string) error

	// PublishIndex makes the resource's index the publicly searchable one.
	PublishIndex(ctx context.Context, resourceID string) error

	// AddEntry indexes a new entry.
	AddEntry(ctx context.Context, resourceID string, e *domain.Entry) error

	// UpdateEntry reindexes a changed entry.
	UpdateEntry(ctx context.Context, resourceID string, e *domain.Entry) error

	// DeleteEntry removes an entry from the index.
	DeleteEntry(ctx context.Context, resourceID, entryID string) error
}

// LogService is the no-op Service used in development and tests: every call
// succeeds after leaving a log line.
type LogService struct {
	log logging.Logger
}

func NewLogService(log logging.Logger) *LogService {
	return &LogService{log: log.With("component", "index")}
}

func (s *LogService) CreateIndex(ctx context.Context, resourceID string) error {
	s.log.Info(ctx, "create index", "resource_id", resourceID)
	return nil
}

func (s *LogService) PublishIndex(ctx context.Context, resourceID string) error {
	s.log.Info(ctx, "publish index", "resource_id", resourceID)
	return nil
}

func (s *LogService) AddEntry(ctx context.Context, resourceID string, e *domain.Entry) error {
	s.log.Debug(ctx, "index entry", "resource_id", resourceID, "entry_id", e.EntryID)
	return nil
}

func (s *LogService) UpdateEntry(ctx context.Context, resourceID string, e *domain.Entry) error {
	s.log.Debug(ctx, "reindex entry", "resource_id", resourceID, "entry_id", e.EntryID)
	return nil
}

func (s *LogService) DeleteEntry(ctx context.Context, resourceID, entryID string) error {
	s.log.Debug(ctx, "unindex entry", "resource_id", resourceID, "entry_id", entryID)
	return nil
}
