package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const atriuumTable = `<html><body>
<table class="holdings">
  <tr class="holding-row">
    <td class="branch">Main Library</td>
    <td class="callno">FIC SMI</td>
    <td class="status">Available</td>
  </tr>
  <tr class="holding-row">
    <td class="branch">West Branch</td>
    <td class="callno">FIC SMI</td>
    <td class="status">Checked Out</td>
  </tr>
</table>
</body></html>`

func TestExtractFirstMatchingStrategy(t *testing.T) {
	doc, err := Parse([]byte(atriuumTable))
	require.NoError(t, err)

	strategies := []Strategy{
		{
			Name:        "specific",
			RowSelector: "tr.nonexistent-row",
			Columns:     ColumnSelectors{Branch: "td.branch"},
		},
		{
			Name:        "fallback",
			RowSelector: "tr.holding-row",
			Columns: ColumnSelectors{
				Branch:     "td.branch",
				CallNumber: "td.callno",
				Status:     "td.status",
			},
		},
	}

	rows, strategy, ok := Extract(doc, strategies)
	require.True(t, ok)
	assert.Equal(t, "fallback", strategy)
	require.Len(t, rows, 2)
	assert.Equal(t, "Main Library", rows[0].Branch)
	assert.Equal(t, "FIC SMI", rows[0].CallNumber)
	assert.Equal(t, "Available", rows[0].Status)
	assert.Equal(t, "West Branch", rows[1].Branch)
	assert.Equal(t, "Checked Out", rows[1].Status)
}

func TestExtractNoStrategyMatches(t *testing.T) {
	doc, err := Parse([]byte(`<html><body><p>no rows here</p></body></html>`))
	require.NoError(t, err)

	_, _, ok := Extract(doc, []Strategy{{Name: "x", RowSelector: "tr.missing"}})
	assert.False(t, ok)
}
