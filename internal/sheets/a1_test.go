package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestA1(t *testing.T) {
	assert.Equal(t, "'Feb-25 (RAW)'!A1", A1("Feb-25 (RAW)", "A1"))
	assert.Equal(t, "'Bob''s'", A1("Bob's", ""))
	assert.Equal(t, "AB12", CellA1(12, 27))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", ColumnName(0))
	assert.Equal(t, "Z", ColumnName(25))
	assert.Equal(t, "AA", ColumnName(26))
	assert.Equal(t, "AZ", ColumnName(51))
	assert.Equal(t, "BA", ColumnName(52))
	assert.Equal(t, "", ColumnName(-1))
	assert.Equal(t, "", CellA1(0, 0))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"Tracker!D2:F30", Range{Sheet: "Tracker", StartRow: 2, StartCol: 3, EndRow: 30, EndCol: 5}},
		{"'Feb-25 (RAW)'!A:A", Range{Sheet: "Feb-25 (RAW)", StartRow: 1, StartCol: 0, EndRow: 0, EndCol: 0}},
		{"'Bob''s'!B7", Range{Sheet: "Bob's", StartRow: 7, StartCol: 1, EndRow: 7, EndCol: 1}},
		{"'Feb-25 (STG1)'", Range{Sheet: "Feb-25 (STG1)", StartRow: 1, StartCol: 0, EndCol: -1}},
		{"Lookup!A2:B", Range{Sheet: "Lookup", StartRow: 2, StartCol: 0, EndRow: 0, EndCol: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRange("Sheet!1A")
	assert.Error(t, err)
	_, err = ParseRange("''")
	assert.Error(t, err)
}
