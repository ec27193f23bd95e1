package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXLSXWriter_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "Quotes.xlsx")
	w := NewXLSXWriter()

	err := w.Write(path, []string{"Record ID", "Quote Name", "Won", "Total"}, [][]any{
		{int64(101), "Liner retrofit", true, 1250.5},
		{int64(102), "", false, ""},
	})
	require.NoError(t, err)

	rows, err := ReadRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Record ID", "Quote Name", "Won", "Total"}, rows[0])
	assert.Equal(t, []string{"101", "Liner retrofit", "TRUE", "1250.5"}, rows[1])
	assert.Equal(t, "102", rows[2][0])
}

func TestXLSXWriter_OverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Users.xlsx")
	w := NewXLSXWriter()

	require.NoError(t, w.Write(path, []string{"A"}, [][]any{{"first"}, {"second"}}))
	require.NoError(t, w.Write(path, []string{"B"}, [][]any{{"only"}}))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"B"}, {"only"}}, rows)
}

func TestXLSXWriter_FailedSaveLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	// a directory in the way makes the final rename fail
	path := filepath.Join(dir, "Tasks.xlsx")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o755))

	err := NewXLSXWriter().Write(path, []string{"A"}, [][]any{{"x"}})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp workbook must be cleaned up")
	assert.True(t, entries[0].IsDir())
}

func TestXLSXWriter_LeavesOnlyTheWorkbook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewXLSXWriter().Write(filepath.Join(dir, "Quotes.xlsx"), []string{"A"}, [][]any{{"x"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Quotes.xlsx", entries[0].Name())
}

func TestXLSXWriter_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Empty.xlsx")
	require.NoError(t, NewXLSXWriter().Write(path, []string{"A", "B"}, nil))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "B"}}, rows)
}

func TestConvertCSV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	dst := filepath.Join(dir, "Opp Stage Duration.xlsx")
	csv := "Opportunity,Stage,Days in Stage\n\"Liner, phase 2\",Proposal,12\nShield,Closed,\n"
	require.NoError(t, os.WriteFile(src, []byte(csv), 0644))

	require.NoError(t, NewXLSXWriter().ConvertCSV(src, dst))

	rows, err := ReadRows(dst)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Opportunity", "Stage", "Days in Stage"}, rows[0])
	assert.Equal(t, []string{"Liner, phase 2", "Proposal", "12"}, rows[1])
	require.GreaterOrEqual(t, len(rows[2]), 2)
	assert.Equal(t, []string{"Shield", "Closed"}, rows[2][:2])
}

func TestConvertCSV_MissingSource(t *testing.T) {
	err := NewXLSXWriter().ConvertCSV(filepath.Join(t.TempDir(), "nope.csv"), filepath.Join(t.TempDir(), "x.xlsx"))
	assert.Error(t, err)
}

func TestCSVCell(t *testing.T) {
	assert.Nil(t, csvCell(""))
	assert.Equal(t, int64(12), csvCell("12"))
	assert.Equal(t, 3.25, csvCell("3.25"))
	assert.Equal(t, "NaN", csvCell("NaN"))
	assert.Equal(t, "Proposal", csvCell("Proposal"))
}
