package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/limitup-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetReasonCache_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT reason, pre_concepts, concepts FROM reason_concepts`).
		WithArgs("从未见过的原因").
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.GetReasonCache(context.Background(), "从未见过的原因")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReasonCache_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT reason, pre_concepts, concepts FROM reason_concepts`).
		WithArgs("固态电池量产").
		WillReturnRows(pgxmock.NewRows([]string{"reason", "pre_concepts", "concepts"}).
			AddRow("固态电池量产", []byte(`["固态电池","锂电池"]`), []byte(`["固态电池"]`)))

	entry, err := s.GetReasonCache(context.Background(), "固态电池量产")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{"固态电池", "锂电池"}, entry.PreConcepts)
	assert.Equal(t, []string{"固态电池"}, entry.Concepts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutReasonCache_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(reason\) DO UPDATE`).
		WithArgs("军工订单", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutReasonCache(context.Background(), model.ReasonCacheEntry{
		Reason:   "军工订单",
		Concepts: []string{"军工"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasStock(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM stocks`).
		WithArgs("000001").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HasStock(context.Background(), "000001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TradeDates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT trade_date FROM trade_calendar WHERE trade_date BETWEEN`).
		WithArgs("20250101", "20250110").
		WillReturnRows(pgxmock.NewRows([]string{"trade_date"}).
			AddRow("20250102").AddRow("20250103").AddRow("20250106"))

	dates, err := s.TradeDates(context.Background(), "20250101", "20250110")
	require.NoError(t, err)
	assert.Equal(t, []string{"20250102", "20250103", "20250106"}, dates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PrevTradeDate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT trade_date FROM trade_calendar WHERE trade_date <=`).
		WithArgs("20250110", 5).
		WillReturnRows(pgxmock.NewRows([]string{"trade_date"}).AddRow("20250103"))

	prev, err := s.PrevTradeDate(context.Background(), "20250110", 5)
	require.NoError(t, err)
	assert.Equal(t, "20250103", prev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DaySnapshot_Ordering(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"trade_date", "stock_code", "stock_name", "status", "first_time", "last_time", "open_times", "continuous", "reason"}
	mock.ExpectQuery(`SELECT trade_date, stock_code, stock_name, status, first_time, last_time, open_times, continuous, reason`).
		WithArgs("20250106").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("20250106", "000002", "乙", "U", "093000", "093000", 0, 1, "固态电池").
			AddRow("20250106", "000001", "甲", "U", "100000", "100000", 1, 2, "军工").
			AddRow("20250106", "000003", "丙", "Z", "103000", "103000", 2, 0, ""))

	snap, err := s.DaySnapshot(context.Background(), "20250106")
	require.NoError(t, err)
	assert.Equal(t, []string{"000002", "000001"}, snap.LimitUpCodes)
	assert.Contains(t, snap.Failed, "000003")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceDayAttributions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM attributions WHERE trade_date =`).
		WithArgs("20250106").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"attributions"}, attributionColumns).WillReturnResult(2)
	mock.ExpectCommit()

	rows := []model.AttributionRow{
		{StockCode: "000001", TradeDate: "20250106", ConceptName: "固态电池"},
		{StockCode: "000002", TradeDate: "20250106", ConceptName: "固态电池"},
	}
	err := s.ReplaceDayAttributions(context.Background(), "20250106", rows)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAttributionsRange(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM attributions WHERE trade_date BETWEEN`).
		WithArgs("20250101", "20250131").
		WillReturnResult(pgxmock.NewResult("DELETE", 40))

	err := s.DeleteAttributionsRange(context.Background(), "20250101", "20250131")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentLimitUpAttribution(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"stock_code", "trade_date", "stock_name", "concept_code", "concept_name"}
	mock.ExpectQuery(`SELECT DISTINCT ON \(a.stock_code\)`).
		WithArgs([]string{"000001"}, "20250102", "20250106").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("000001", "20250103", "甲", "885001", "液冷服务器"))

	latest, err := s.RecentLimitUpAttribution(context.Background(), []string{"000001"}, "20250102", "20250106")
	require.NoError(t, err)
	require.Contains(t, latest, "000001")
	assert.Equal(t, "液冷服务器", latest["000001"].ConceptName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE attribution_runs SET status =`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusFailed, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
