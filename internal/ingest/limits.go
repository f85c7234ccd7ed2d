package ingest

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/limitup-cli/internal/model"
)

// limit-event spreadsheet column layout:
// 交易日, 股票代码, 股票名称, 状态(U/Z/D), 首次封板, 最后封板, 开板次数, 连板数, 涨停原因
const limitEventMinColumns = 4

// ParseLimitEvent converts one spreadsheet row to a LimitEvent.
func ParseLimitEvent(cells []string) (model.LimitEvent, error) {
	if len(cells) < limitEventMinColumns {
		return model.LimitEvent{}, eris.Errorf("ingest: limit row needs at least %d columns, got %d", limitEventMinColumns, len(cells))
	}

	ev := model.LimitEvent{
		TradeDate: strings.TrimSpace(cells[0]),
		StockCode: strings.TrimSpace(cells[1]),
		StockName: strings.TrimSpace(cells[2]),
		Status:    model.LimitStatus(strings.TrimSpace(cells[3])),
	}
	if ev.TradeDate == "" || ev.StockCode == "" {
		return model.LimitEvent{}, eris.New("ingest: limit row missing trade date or stock code")
	}
	switch ev.Status {
	case model.LimitStatusUp, model.LimitStatusFailed, model.LimitStatusDown:
	default:
		return model.LimitEvent{}, eris.Errorf("ingest: unknown limit status %q", cells[3])
	}

	if len(cells) > 4 {
		ev.FirstTime = strings.TrimSpace(cells[4])
	}
	if len(cells) > 5 {
		ev.LastTime = strings.TrimSpace(cells[5])
	}
	if len(cells) > 6 {
		ev.OpenTimes = parseIntCell(cells[6])
	}
	if len(cells) > 7 {
		ev.Continuous = parseIntCell(cells[7])
	}
	if len(cells) > 8 {
		ev.Reason = strings.TrimSpace(cells[8])
	}
	return ev, nil
}

// parseIntCell tolerates spreadsheet numerics like "2" and "2.0".
func parseIntCell(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
