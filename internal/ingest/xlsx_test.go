package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("数据")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "limits.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSXSkipsHeader(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"交易日", "股票代码"},
		{"20250106", "000001"},
		{"20250106", "000002"},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "000001", rows[0][1])
}

func TestReadXLSXSheetNotFound(t *testing.T) {
	path := writeTestXLSX(t, [][]string{{"20250106", "000001"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "不存在"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStreamXLSX(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"交易日", "股票代码"},
		{"20250106", "000001"},
	})

	rowCh, errCh := StreamXLSX(context.Background(), path, XLSXOptions{SkipRows: 1})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	require.Len(t, rows, 1)
	assert.Equal(t, "20250106", rows[0][0])
}
