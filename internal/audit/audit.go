// Package audit records unattributable limit-up stocks in a spreadsheet for
// manual review.
package audit

import (
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var headerRow = []string{"交易日", "股票代码", "股票名称", "涨停原因"}

// Logger appends review rows to an XLSX workbook, one row per (trade date,
// stock) the pipeline could not place. Re-running a day does not duplicate
// rows already recorded.
type Logger struct {
	mu    sync.Mutex
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
	seen  map[string]bool
}

// NewLogger opens the workbook at path, creating it with a header row when it
// does not exist yet.
func NewLogger(path string) (*Logger, error) {
	l := &Logger{path: path, seen: make(map[string]bool)}

	if _, err := os.Stat(path); err == nil {
		f, err := xlsx.OpenFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "audit: open %s", path)
		}
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("audit: %s has no sheets", path)
		}
		l.file = f
		l.sheet = f.Sheets[0]
		for i, row := range l.sheet.Rows {
			if i == 0 || len(row.Cells) < 2 {
				continue
			}
			l.seen[row.Cells[0].String()+"|"+row.Cells[1].String()] = true
		}
		return l, nil
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("未归因")
	if err != nil {
		return nil, eris.Wrap(err, "audit: add sheet")
	}
	row := sheet.AddRow()
	for _, h := range headerRow {
		row.AddCell().SetString(h)
	}
	l.file = f
	l.sheet = sheet
	return l, nil
}

// Append records one unattributed stock and saves the workbook. A (date,
// stock) pair already present is a no-op.
func (l *Logger) Append(tradeDate, stockCode, stockName, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := tradeDate + "|" + stockCode
	if l.seen[key] {
		return nil
	}

	row := l.sheet.AddRow()
	for _, v := range []string{tradeDate, stockCode, stockName, reason} {
		row.AddCell().SetString(v)
	}
	if err := l.file.Save(l.path); err != nil {
		return eris.Wrapf(err, "audit: save %s", l.path)
	}
	l.seen[key] = true
	return nil
}

// Len returns the number of recorded rows.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
