package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  string
		layout string
	}{
		{"iso", "2024-01-15", "2006-01-02"},
		{"us", "01/15/2024", "01/02/2006"},
		{"eu", "15/01/2024", "02/01/2006"},
		{"dotted", "15.01.2024", "02.01.2006"},
		{"short month", "15 Jan 2024", "2 Jan 2006"},
		{"with time", "2024-01-15 10:32:00", "2006-01-02"},
		{"rfc3339", "2024-01-15T23:59:59Z", "2006-01-02"},
		{"non padded", "1/15/2024", "1/2/2006"},
		{"surrounding space", "  2024-01-15 ", "2006-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input, tt.layout)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseDate_Errors(t *testing.T) {
	_, err := ParseDate("", "2006-01-02")
	assert.ErrorIs(t, err, ErrEmptyDate)

	_, err = ParseDate("15/01/2024", "01/02/2006")
	assert.Error(t, err)

	_, err = ParseDate("not a date", "2006-01-02")
	assert.Error(t, err)
}
