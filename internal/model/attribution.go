package model

import "time"

// AttributionRow is one persisted (stock, concept) attribution for a trading
// day. A stock may carry more than one row when the time-correlation filter
// could not disambiguate.
type AttributionRow struct {
	StockCode   string `json:"stock_code"`
	TradeDate   string `json:"trade_date"`
	StockName   string `json:"stock_name"`
	ConceptCode string `json:"concept_code,omitempty"`
	ConceptName string `json:"concept_name"`
}

// RunStatus tracks an attribution run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one invocation of the attribution pipeline over a date range.
type Run struct {
	ID        string    `json:"id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
