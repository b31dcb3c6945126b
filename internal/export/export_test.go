package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/mcq-extractor/internal/domain"
)

var sample = []domain.MCQRecord{
	{ID: "1", Question: "2+2?", ChoiceA: "3", ChoiceB: "4", ChoiceC: "5", ChoiceD: "6", ChoiceE: "7", CorrectAnswer: "B"},
	{ID: "2", Question: "Capital of France?", ChoiceA: "Paris", ChoiceB: "Rome", ChoiceC: "Madrid", ChoiceD: "Berlin", Passage: "Europe"},
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestXLSX_Layout(t *testing.T) {
	data, err := XLSX(sample)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{"2+2?", "3", "4", "5", "6", "B"}, rows[1])
	assert.Equal(t, []string{"Capital of France?", "Paris", "Rome", "Madrid", "Berlin", "", "Europe"}, rows[2])

	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.Equal(t, 60.0, width)
	width, err = f.GetColWidth(SheetName, "F")
	require.NoError(t, err)
	assert.Equal(t, 15.0, width)
	width, err = f.GetColWidth(SheetName, "G")
	require.NoError(t, err)
	assert.Equal(t, 80.0, width)

	styleID, err := f.GetCellStyle(SheetName, "C1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestXLSX_Empty(t *testing.T) {
	data, err := XLSX(nil)
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Headers, rows[0])
}

func TestText(t *testing.T) {
	out := Text(sample)

	assert.Contains(t, out, "2+2?\nA) 3\nB) 4\nC) 5\nD) 6\nE) 7\nAnswer: B\n")
	assert.Contains(t, out, "Capital of France?\nA) Paris\n")
	assert.Equal(t, 1, strings.Count(out, separator))
	assert.NotContains(t, out, "Europe")

	second := out[strings.Index(out, "Capital"):]
	assert.NotContains(t, second, "Answer:")
	assert.NotContains(t, second, "E)")

	assert.Empty(t, Text(nil))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sample[:1]))
	assert.Equal(t, Text(sample[:1]), buf.String())
}
