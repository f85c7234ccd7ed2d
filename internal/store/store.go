// Package store persists the concept catalog, limit events, reason cache and
// attribution output behind one interface with Postgres and SQLite backends.
package store

import (
	"context"

	"github.com/sells-group/limitup-cli/internal/model"
)

// RunFilter specifies criteria for listing attribution runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the attribution pipeline.
type Store interface {
	// Catalog
	LoadConceptCatalog(ctx context.Context) ([]model.ConceptMeta, error)
	HasStock(ctx context.Context, stockCode string) (bool, error)
	HasConceptStockRelation(ctx context.Context, stockCode, conceptName string) (bool, error)

	// Reason cache
	GetReasonCache(ctx context.Context, reason string) (*model.ReasonCacheEntry, error)
	PutReasonCache(ctx context.Context, entry model.ReasonCacheEntry) error

	// Calendar and limit events
	TradeDates(ctx context.Context, start, end string) ([]string, error)
	PrevTradeDate(ctx context.Context, date string, offset int) (string, error)
	DaySnapshot(ctx context.Context, tradeDate string) (*model.DaySnapshot, error)
	ImportLimitEvents(ctx context.Context, events []model.LimitEvent) (int64, error)
	ImportTradeCalendar(ctx context.Context, dates []string) (int64, error)

	// Attributions
	DeleteAttributionsRange(ctx context.Context, start, end string) error
	ReplaceDayAttributions(ctx context.Context, tradeDate string, rows []model.AttributionRow) error
	UpsertAttributions(ctx context.Context, rows []model.AttributionRow) error
	DayAttributions(ctx context.Context, tradeDate string) ([]model.AttributionRow, error)
	// RecentLimitUpAttribution returns, per stock, its latest attribution
	// between start and end on a day the stock closed limit-up.
	RecentLimitUpAttribution(ctx context.Context, stockCodes []string, start, end string) (map[string]model.AttributionRow, error)

	// Runs
	CreateRun(ctx context.Context, startDate, endDate string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
