package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/limitup-cli/internal/model"
)

func TestParseLimitEvent(t *testing.T) {
	ev, err := ParseLimitEvent([]string{
		"20250106", "000001", "甲", "U", "093000", "145500", "2", "3.0", "固态电池+军工",
	})
	require.NoError(t, err)
	assert.Equal(t, "20250106", ev.TradeDate)
	assert.Equal(t, "000001", ev.StockCode)
	assert.Equal(t, model.LimitStatusUp, ev.Status)
	assert.Equal(t, "093000", ev.FirstTime)
	assert.Equal(t, "145500", ev.LastTime)
	assert.Equal(t, 2, ev.OpenTimes)
	assert.Equal(t, 3, ev.Continuous)
	assert.Equal(t, "固态电池+军工", ev.Reason)
}

func TestParseLimitEventShortRow(t *testing.T) {
	ev, err := ParseLimitEvent([]string{"20250106", "000003", "丙", "Z"})
	require.NoError(t, err)
	assert.Equal(t, model.LimitStatusFailed, ev.Status)
	assert.Empty(t, ev.Reason)
}

func TestParseLimitEventErrors(t *testing.T) {
	_, err := ParseLimitEvent([]string{"20250106", "000001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")

	_, err = ParseLimitEvent([]string{"20250106", "", "甲", "U"})
	require.Error(t, err)

	_, err = ParseLimitEvent([]string{"20250106", "000001", "甲", "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown limit status")
}

func TestParseIntCell(t *testing.T) {
	assert.Equal(t, 2, parseIntCell("2"))
	assert.Equal(t, 2, parseIntCell("2.0"))
	assert.Equal(t, 0, parseIntCell(""))
	assert.Equal(t, 0, parseIntCell("n/a"))
}
