package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pairRow struct {
	CourseA string `csv:"course_a"`
	CourseB string `csv:"course_b"`
	Count   int    `csv:"count"`
}

func TestCSVRenderWritesHeader(t *testing.T) {
	out, err := NewCSVExporter(0).Render([]pairRow{{CourseA: "Band", CourseB: "AP Calc", Count: 4}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "course_a,course_b,count", lines[0])
	assert.Equal(t, "Band,AP Calc,4", lines[1])
}

func TestCSVRenderRejectsNonSlice(t *testing.T) {
	_, err := NewCSVExporter(0).Render(pairRow{})
	require.Error(t, err)
}

func TestCSVDecodeWithDelimiter(t *testing.T) {
	var rows []pairRow
	err := NewCSVExporter(';').Decode(strings.NewReader("course_a;course_b;count\nBand; Choir;2\n"), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Choir", rows[0].CourseB)
	assert.Equal(t, 2, rows[0].Count)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Title:   "Schedule Health",
		Summary: [][2]string{{"Overall", "88.5"}},
		Headers: []string{"Component", "Score"},
		Rows:    [][]string{{"Conflicts", "100.0"}, {"Balance"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))

	_, err = NewPDFExporter().Render(Dataset{})
	require.Error(t, err)
}
