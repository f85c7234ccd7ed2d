package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/limitup-cli/internal/db"
	"github.com/sells-group/limitup-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// reason-cache pair runs once per distinct reason segment per day, and the
// relation checks run once per fallback candidate, so they dominate traffic.
var preparedStatements = map[string]string{
	"get_reason_cache": `SELECT reason, pre_concepts, concepts FROM reason_concepts WHERE reason = $1`,
	"put_reason_cache": `INSERT INTO reason_concepts (reason, pre_concepts, concepts, updated_at) VALUES ($1, $2, $3, now()) ON CONFLICT (reason) DO UPDATE SET pre_concepts = EXCLUDED.pre_concepts, concepts = EXCLUDED.concepts, updated_at = now()`,
	"has_stock":        `SELECT EXISTS (SELECT 1 FROM stocks WHERE code = $1)`,
	"has_relation":     `SELECT EXISTS (SELECT 1 FROM concept_stocks cs JOIN concepts c ON c.code = cs.concept_code WHERE cs.stock_code = $1 AND c.name = $2)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS concepts (
	code      TEXT PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	count     INTEGER NOT NULL DEFAULT 0,
	exchange  TEXT NOT NULL DEFAULT 'A',
	list_date TEXT,
	type      TEXT NOT NULL DEFAULT 'N',
	available BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS concept_stocks (
	concept_code TEXT NOT NULL REFERENCES concepts(code),
	stock_code   TEXT NOT NULL,
	PRIMARY KEY (concept_code, stock_code)
);

CREATE TABLE IF NOT EXISTS stocks (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	list_date   TEXT,
	delist_date TEXT
);

CREATE TABLE IF NOT EXISTS trade_calendar (
	trade_date TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS limit_events (
	trade_date TEXT NOT NULL,
	stock_code TEXT NOT NULL,
	stock_name TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	first_time TEXT NOT NULL DEFAULT '',
	last_time  TEXT NOT NULL DEFAULT '',
	open_times INTEGER NOT NULL DEFAULT 0,
	continuous INTEGER NOT NULL DEFAULT 0,
	reason     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (trade_date, stock_code)
);

CREATE TABLE IF NOT EXISTS reason_concepts (
	reason       TEXT PRIMARY KEY,
	pre_concepts JSONB NOT NULL DEFAULT '[]',
	concepts     JSONB NOT NULL DEFAULT '[]',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attributions (
	stock_code   TEXT NOT NULL,
	trade_date   TEXT NOT NULL,
	stock_name   TEXT NOT NULL DEFAULT '',
	concept_code TEXT NOT NULL DEFAULT '',
	concept_name TEXT NOT NULL,
	pos          INTEGER NOT NULL DEFAULT 2147483647,
	PRIMARY KEY (stock_code, trade_date, concept_name)
);

CREATE TABLE IF NOT EXISTS attribution_runs (
	id         TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_concept_stocks_stock ON concept_stocks(stock_code);
CREATE INDEX IF NOT EXISTS idx_limit_events_date ON limit_events(trade_date);
CREATE INDEX IF NOT EXISTS idx_attributions_date ON attributions(trade_date);
CREATE INDEX IF NOT EXISTS idx_attribution_runs_status ON attribution_runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadConceptCatalog(ctx context.Context) ([]model.ConceptMeta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, count, exchange, COALESCE(list_date, ''), type, available FROM concepts ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load concept catalog")
	}
	defer rows.Close()

	var metas []model.ConceptMeta
	for rows.Next() {
		var m model.ConceptMeta
		if err := rows.Scan(&m.Code, &m.Name, &m.Count, &m.Exchange, &m.ListDate, &m.Type, &m.Available); err != nil {
			return nil, eris.Wrap(err, "postgres: scan concept")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "postgres: load concept catalog iterate")
}

func (s *PostgresStore) HasStock(ctx context.Context, stockCode string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE code = $1)`,
		stockCode,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has stock %s", stockCode)
	}
	return exists, nil
}

func (s *PostgresStore) HasConceptStockRelation(ctx context.Context, stockCode, conceptName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM concept_stocks cs JOIN concepts c ON c.code = cs.concept_code WHERE cs.stock_code = $1 AND c.name = $2)`,
		stockCode, conceptName,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has relation %s/%s", stockCode, conceptName)
	}
	return exists, nil
}

func (s *PostgresStore) GetReasonCache(ctx context.Context, reason string) (*model.ReasonCacheEntry, error) {
	var entry model.ReasonCacheEntry
	var preJSON, conceptsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT reason, pre_concepts, concepts FROM reason_concepts WHERE reason = $1`,
		reason,
	).Scan(&entry.Reason, &preJSON, &conceptsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get reason cache")
	}
	if err := json.Unmarshal(preJSON, &entry.PreConcepts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pre concepts")
	}
	if err := json.Unmarshal(conceptsJSON, &entry.Concepts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal concepts")
	}
	return &entry, nil
}

func (s *PostgresStore) PutReasonCache(ctx context.Context, entry model.ReasonCacheEntry) error {
	preJSON, err := marshalStrings(entry.PreConcepts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pre concepts")
	}
	conceptsJSON, err := marshalStrings(entry.Concepts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal concepts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reason_concepts (reason, pre_concepts, concepts, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (reason) DO UPDATE SET pre_concepts = EXCLUDED.pre_concepts, concepts = EXCLUDED.concepts, updated_at = now()`,
		entry.Reason, preJSON, conceptsJSON,
	)
	return eris.Wrap(err, "postgres: put reason cache")
}

func (s *PostgresStore) TradeDates(ctx context.Context, start, end string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trade_date FROM trade_calendar WHERE trade_date BETWEEN $1 AND $2 ORDER BY trade_date`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: trade dates")
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trade date")
		}
		dates = append(dates, d)
	}
	return dates, eris.Wrap(rows.Err(), "postgres: trade dates iterate")
}

func (s *PostgresStore) PrevTradeDate(ctx context.Context, date string, offset int) (string, error) {
	var prev string
	err := s.pool.QueryRow(ctx,
		`SELECT trade_date FROM trade_calendar WHERE trade_date <= $1 ORDER BY trade_date DESC OFFSET $2 LIMIT 1`,
		date, offset,
	).Scan(&prev)
	if err == nil {
		return prev, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(err, "postgres: prev trade date from %s", date)
	}

	// Offset runs past the start of the calendar; clamp to the earliest day.
	var earliest *string
	err = s.pool.QueryRow(ctx,
		`SELECT MIN(trade_date) FROM trade_calendar WHERE trade_date <= $1`,
		date,
	).Scan(&earliest)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: earliest trade date before %s", date)
	}
	if earliest == nil {
		return date, nil
	}
	return *earliest, nil
}

func (s *PostgresStore) DaySnapshot(ctx context.Context, tradeDate string) (*model.DaySnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trade_date, stock_code, stock_name, status, first_time, last_time, open_times, continuous, reason
		 FROM limit_events WHERE trade_date = $1 ORDER BY first_time, stock_code`,
		tradeDate,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: day snapshot %s", tradeDate)
	}
	defer rows.Close()

	var events []model.LimitEvent
	for rows.Next() {
		var ev model.LimitEvent
		if err := rows.Scan(&ev.TradeDate, &ev.StockCode, &ev.StockName, &ev.Status,
			&ev.FirstTime, &ev.LastTime, &ev.OpenTimes, &ev.Continuous, &ev.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan limit event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: day snapshot iterate")
	}
	return model.NewDaySnapshot(tradeDate, events), nil
}

var limitEventColumns = []string{
	"trade_date", "stock_code", "stock_name", "status",
	"first_time", "last_time", "open_times", "continuous", "reason",
}

func (s *PostgresStore) ImportLimitEvents(ctx context.Context, events []model.LimitEvent) (int64, error) {
	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = []any{
			ev.TradeDate, ev.StockCode, ev.StockName, string(ev.Status),
			ev.FirstTime, ev.LastTime, ev.OpenTimes, ev.Continuous, ev.Reason,
		}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "limit_events",
		Columns:      limitEventColumns,
		ConflictKeys: []string{"trade_date", "stock_code"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import limit events")
}

func (s *PostgresStore) ImportTradeCalendar(ctx context.Context, dates []string) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO trade_calendar (trade_date) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`,
		dates,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import trade calendar")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAttributionsRange(ctx context.Context, start, end string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM attributions WHERE trade_date BETWEEN $1 AND $2`,
		start, end,
	)
	return eris.Wrapf(err, "postgres: delete attributions %s..%s", start, end)
}

var attributionColumns = []string{"stock_code", "trade_date", "stock_name", "concept_code", "concept_name", "pos"}

func (s *PostgresStore) ReplaceDayAttributions(ctx context.Context, tradeDate string, rows []model.AttributionRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace day attributions: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM attributions WHERE trade_date = $1`, tradeDate); err != nil {
		return eris.Wrapf(err, "postgres: clear day attributions %s", tradeDate)
	}
	if len(rows) > 0 {
		copyRows := make([][]any, len(rows))
		for i, row := range rows {
			copyRows[i] = []any{row.StockCode, row.TradeDate, row.StockName, row.ConceptCode, row.ConceptName, i}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"attributions"}, attributionColumns, pgx.CopyFromRows(copyRows)); err != nil {
			return eris.Wrapf(err, "postgres: copy day attributions %s", tradeDate)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace day attributions: commit")
}

func (s *PostgresStore) UpsertAttributions(ctx context.Context, rows []model.AttributionRow) error {
	upsertRows := make([][]any, len(rows))
	for i, row := range rows {
		// Rows written outside the daily replace sort after that day's output.
		upsertRows[i] = []any{row.StockCode, row.TradeDate, row.StockName, row.ConceptCode, row.ConceptName, 1 << 30}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "attributions",
		Columns:      attributionColumns,
		ConflictKeys: []string{"stock_code", "trade_date", "concept_name"},
	}, upsertRows)
	return eris.Wrap(err, "postgres: upsert attributions")
}

func (s *PostgresStore) DayAttributions(ctx context.Context, tradeDate string) ([]model.AttributionRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stock_code, trade_date, stock_name, concept_code, concept_name
		 FROM attributions WHERE trade_date = $1 ORDER BY pos, stock_code`,
		tradeDate,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: day attributions %s", tradeDate)
	}
	defer rows.Close()

	var out []model.AttributionRow
	for rows.Next() {
		var r model.AttributionRow
		if err := rows.Scan(&r.StockCode, &r.TradeDate, &r.StockName, &r.ConceptCode, &r.ConceptName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attribution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: day attributions iterate")
}

func (s *PostgresStore) RecentLimitUpAttribution(ctx context.Context, stockCodes []string, start, end string) (map[string]model.AttributionRow, error) {
	if len(stockCodes) == 0 {
		return map[string]model.AttributionRow{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (a.stock_code) a.stock_code, a.trade_date, a.stock_name, a.concept_code, a.concept_name
		 FROM attributions a
		 JOIN limit_events le ON le.trade_date = a.trade_date AND le.stock_code = a.stock_code AND le.status = 'U'
		 WHERE a.stock_code = ANY($1) AND a.trade_date BETWEEN $2 AND $3
		 ORDER BY a.stock_code, a.trade_date DESC, a.pos`,
		stockCodes, start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent limit-up attributions")
	}
	defer rows.Close()

	out := make(map[string]model.AttributionRow)
	for rows.Next() {
		var r model.AttributionRow
		if err := rows.Scan(&r.StockCode, &r.TradeDate, &r.StockName, &r.ConceptCode, &r.ConceptName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent attribution")
		}
		out[r.StockCode] = r
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent attributions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, startDate, endDate string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO attribution_runs (id, start_date, end_date, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, startDate, endDate, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attribution_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, start_date, end_date, status, error, created_at, updated_at FROM attribution_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.StartDate, &r.EndDate, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// marshalStrings encodes a string slice as a JSON array, never as null, so
// cache entries round-trip an empty resolution as [].
func marshalStrings(in []string) ([]byte, error) {
	if in == nil {
		in = []string{}
	}
	return json.Marshal(in)
}
