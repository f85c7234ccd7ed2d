package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "limit_events", []string{"trade_date", "stock_code"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"limit_events"}, []string{"trade_date", "stock_code"}).WillReturnResult(3)

	rows := [][]any{{"20250106", "000001"}, {"20250106", "000002"}, {"20250106", "000003"}}
	n, err := CopyFrom(context.Background(), mock, "limit_events", []string{"trade_date", "stock_code"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"limit_events"}, []string{"trade_date"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"20250106"}}
	_, err = CopyFrom(context.Background(), mock, "limit_events", []string{"trade_date"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO limit_events")
	assert.NoError(t, mock.ExpectationsWereMet())
}
