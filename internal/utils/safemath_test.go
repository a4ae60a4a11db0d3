package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckMultiplyOverflow(t *testing.T) {
	require.NoError(t, CheckMultiplyOverflow(0, math.MaxUint64))
	require.NoError(t, CheckMultiplyOverflow(1000, 1000))
	require.Error(t, CheckMultiplyOverflow(math.MaxUint64, 2))
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		a, b, want uint64
	}{
		{0, 8, 0},
		{1, 8, 1},
		{8, 8, 1},
		{9, 8, 2},
		{16, 8, 2},
		{17, 32, 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CeilDiv(tt.a, tt.b))
	}
}
