package discount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundingMode(t *testing.T) {
	for _, name := range []string{"up", "down", "half_up", "half_down", "half_even"} {
		mode, err := ParseRoundingMode(name)
		require.NoError(t, err)
		assert.Equal(t, RoundingMode(name), mode)
	}

	_, err := ParseRoundingMode("nearest")
	require.Error(t, err)
}

func TestRound(t *testing.T) {
	tests := []struct {
		mode  RoundingMode
		value string
		want  string
	}{
		{RoundingUp, "2.341", "2.35"},
		{RoundingUp, "2.340", "2.34"},
		{RoundingDown, "2.349", "2.34"},
		{RoundingDown, "2.340", "2.34"},
		{RoundingHalfUp, "2.345", "2.35"},
		{RoundingHalfUp, "2.344", "2.34"},
		{RoundingHalfUp, "2.346", "2.35"},
		{RoundingHalfDown, "2.345", "2.34"},
		{RoundingHalfDown, "2.346", "2.35"},
		{RoundingHalfDown, "2.344", "2.34"},
		{RoundingHalfEven, "2.345", "2.34"},
		{RoundingHalfEven, "2.335", "2.34"},
		{RoundingHalfEven, "2.346", "2.35"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.value, func(t *testing.T) {
			got := Round(d(tt.value), 2, tt.mode)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
