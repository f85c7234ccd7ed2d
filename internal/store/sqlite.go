package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/limitup-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and backtests where standing up Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite allows one writer; a second pooled connection would also see a
	// different database entirely under an in-memory DSN.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS concepts (
	code      TEXT PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	count     INTEGER NOT NULL DEFAULT 0,
	exchange  TEXT NOT NULL DEFAULT 'A',
	list_date TEXT,
	type      TEXT NOT NULL DEFAULT 'N',
	available INTEGER NOT NULL DEFAULT 1
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
	pre_concepts TEXT NOT NULL DEFAULT '[]',
	concepts     TEXT NOT NULL DEFAULT '[]',
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_concept_stocks_stock ON concept_stocks(stock_code);
CREATE INDEX IF NOT EXISTS idx_limit_events_date ON limit_events(trade_date);
CREATE INDEX IF NOT EXISTS idx_attributions_date ON attributions(trade_date);
CREATE INDEX IF NOT EXISTS idx_attribution_runs_status ON attribution_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadConceptCatalog(ctx context.Context) ([]model.ConceptMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, count, exchange, COALESCE(list_date, ''), type, available FROM concepts ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load concept catalog")
	}
	defer rows.Close()

	var metas []model.ConceptMeta
	for rows.Next() {
		var m model.ConceptMeta
		if err := rows.Scan(&m.Code, &m.Name, &m.Count, &m.Exchange, &m.ListDate, &m.Type, &m.Available); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan concept")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "sqlite: load concept catalog iterate")
}

func (s *SQLiteStore) HasStock(ctx context.Context, stockCode string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE code = ?)`,
		stockCode,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has stock %s", stockCode)
	}
	return exists, nil
}

func (s *SQLiteStore) HasConceptStockRelation(ctx context.Context, stockCode, conceptName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM concept_stocks cs JOIN concepts c ON c.code = cs.concept_code WHERE cs.stock_code = ? AND c.name = ?)`,
		stockCode, conceptName,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has relation %s/%s", stockCode, conceptName)
	}
	return exists, nil
}

func (s *SQLiteStore) GetReasonCache(ctx context.Context, reason string) (*model.ReasonCacheEntry, error) {
	var entry model.ReasonCacheEntry
	var preJSON, conceptsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT reason, pre_concepts, concepts FROM reason_concepts WHERE reason = ?`,
		reason,
	).Scan(&entry.Reason, &preJSON, &conceptsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get reason cache")
	}
	if err := json.Unmarshal([]byte(preJSON), &entry.PreConcepts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pre concepts")
	}
	if err := json.Unmarshal([]byte(conceptsJSON), &entry.Concepts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal concepts")
	}
	return &entry, nil
}

func (s *SQLiteStore) PutReasonCache(ctx context.Context, entry model.ReasonCacheEntry) error {
	preJSON, err := marshalStrings(entry.PreConcepts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pre concepts")
	}
	conceptsJSON, err := marshalStrings(entry.Concepts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal concepts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reason_concepts (reason, pre_concepts, concepts, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (reason) DO UPDATE SET pre_concepts = excluded.pre_concepts, concepts = excluded.concepts, updated_at = datetime('now')`,
		entry.Reason, string(preJSON), string(conceptsJSON),
	)
	return eris.Wrap(err, "sqlite: put reason cache")
}

func (s *SQLiteStore) TradeDates(ctx context.Context, start, end string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_date FROM trade_calendar WHERE trade_date BETWEEN ? AND ? ORDER BY trade_date`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: trade dates")
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trade date")
		}
		dates = append(dates, d)
	}
	return dates, eris.Wrap(rows.Err(), "sqlite: trade dates iterate")
}

func (s *SQLiteStore) PrevTradeDate(ctx context.Context, date string, offset int) (string, error) {
	var prev string
	err := s.db.QueryRowContext(ctx,
		`SELECT trade_date FROM trade_calendar WHERE trade_date <= ? ORDER BY trade_date DESC LIMIT 1 OFFSET ?`,
		date, offset,
	).Scan(&prev)
	if err == nil {
		return prev, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", eris.Wrapf(err, "sqlite: prev trade date from %s", date)
	}

	var earliest sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(trade_date) FROM trade_calendar WHERE trade_date <= ?`,
		date,
	).Scan(&earliest)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: earliest trade date before %s", date)
	}
	if !earliest.Valid {
		return date, nil
	}
	return earliest.String, nil
}

func (s *SQLiteStore) DaySnapshot(ctx context.Context, tradeDate string) (*model.DaySnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_date, stock_code, stock_name, status, first_time, last_time, open_times, continuous, reason
		 FROM limit_events WHERE trade_date = ? ORDER BY first_time, stock_code`,
		tradeDate,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: day snapshot %s", tradeDate)
	}
	defer rows.Close()

	var events []model.LimitEvent
	for rows.Next() {
		var ev model.LimitEvent
		if err := rows.Scan(&ev.TradeDate, &ev.StockCode, &ev.StockName, &ev.Status,
			&ev.FirstTime, &ev.LastTime, &ev.OpenTimes, &ev.Continuous, &ev.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan limit event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: day snapshot iterate")
	}
	return model.NewDaySnapshot(tradeDate, events), nil
}

func (s *SQLiteStore) ImportLimitEvents(ctx context.Context, events []model.LimitEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import limit events: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO limit_events (trade_date, stock_code, stock_name, status, first_time, last_time, open_times, continuous, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (trade_date, stock_code) DO UPDATE SET
		 stock_name = excluded.stock_name, status = excluded.status,
		 first_time = excluded.first_time, last_time = excluded.last_time,
		 open_times = excluded.open_times, continuous = excluded.continuous, reason = excluded.reason`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import limit events: prepare")
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.TradeDate, ev.StockCode, ev.StockName, string(ev.Status),
			ev.FirstTime, ev.LastTime, ev.OpenTimes, ev.Continuous, ev.Reason,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import limit event %s/%s", ev.TradeDate, ev.StockCode)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import limit events: commit")
	}
	return int64(len(events)), nil
}

func (s *SQLiteStore) ImportTradeCalendar(ctx context.Context, dates []string) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import trade calendar: begin tx")
	}
	defer tx.Rollback()

	var inserted int64
	for _, d := range dates {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO trade_calendar (trade_date) VALUES (?)`, d)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import trade date %s", d)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import trade calendar: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) DeleteAttributionsRange(ctx context.Context, start, end string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM attributions WHERE trade_date BETWEEN ? AND ?`,
		start, end,
	)
	return eris.Wrapf(err, "sqlite: delete attributions %s..%s", start, end)
}

func (s *SQLiteStore) ReplaceDayAttributions(ctx context.Context, tradeDate string, rows []model.AttributionRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace day attributions: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attributions WHERE trade_date = ?`, tradeDate); err != nil {
		return eris.Wrapf(err, "sqlite: clear day attributions %s", tradeDate)
	}
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attributions (stock_code, trade_date, stock_name, concept_code, concept_name, pos) VALUES (?, ?, ?, ?, ?, ?)`,
			row.StockCode, row.TradeDate, row.StockName, row.ConceptCode, row.ConceptName, i,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert attribution %s/%s", row.StockCode, row.ConceptName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace day attributions: commit")
}

func (s *SQLiteStore) UpsertAttributions(ctx context.Context, rows []model.AttributionRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert attributions: begin tx")
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attributions (stock_code, trade_date, stock_name, concept_code, concept_name, pos) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (stock_code, trade_date, concept_name) DO UPDATE SET
			 stock_name = excluded.stock_name, concept_code = excluded.concept_code`,
			row.StockCode, row.TradeDate, row.StockName, row.ConceptCode, row.ConceptName, 1<<30,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert attribution %s/%s", row.StockCode, row.ConceptName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert attributions: commit")
}

func (s *SQLiteStore) DayAttributions(ctx context.Context, tradeDate string) ([]model.AttributionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stock_code, trade_date, stock_name, concept_code, concept_name
		 FROM attributions WHERE trade_date = ? ORDER BY pos, stock_code`,
		tradeDate,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: day attributions %s", tradeDate)
	}
	defer rows.Close()

	var out []model.AttributionRow
	for rows.Next() {
		var r model.AttributionRow
		if err := rows.Scan(&r.StockCode, &r.TradeDate, &r.StockName, &r.ConceptCode, &r.ConceptName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attribution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: day attributions iterate")
}

func (s *SQLiteStore) RecentLimitUpAttribution(ctx context.Context, stockCodes []string, start, end string) (map[string]model.AttributionRow, error) {
	if len(stockCodes) == 0 {
		return map[string]model.AttributionRow{}, nil
	}

	placeholders := strings.Repeat("?,", len(stockCodes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(stockCodes)+2)
	for _, c := range stockCodes {
		args = append(args, c)
	}
	args = append(args, start, end)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT a.stock_code, a.trade_date, a.stock_name, a.concept_code, a.concept_name
		 FROM attributions a
		 JOIN limit_events le ON le.trade_date = a.trade_date AND le.stock_code = a.stock_code AND le.status = 'U'
		 WHERE a.stock_code IN (%s) AND a.trade_date BETWEEN ? AND ?
		 ORDER BY a.stock_code, a.trade_date DESC, a.pos`, placeholders),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent limit-up attributions")
	}
	defer rows.Close()

	out := make(map[string]model.AttributionRow)
	for rows.Next() {
		var r model.AttributionRow
		if err := rows.Scan(&r.StockCode, &r.TradeDate, &r.StockName, &r.ConceptCode, &r.ConceptName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent attribution")
		}
		// Rows arrive newest-first per stock; keep the first one seen.
		if _, ok := out[r.StockCode]; !ok {
			out[r.StockCode] = r
		}
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent attributions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, startDate, endDate string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attribution_runs (id, start_date, end_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, startDate, endDate, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attribution_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, start_date, end_date, status, error, created_at, updated_at FROM attribution_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.StartDate, &r.EndDate, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
