package iebus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParity(t *testing.T) {
	testCases := []struct {
		value    uint16
		bits     int
		expected uint8
	}{
		{0x000, 12, 0},
		{0x001, 12, 1},
		{0x123, 12, 0},
		{0x456, 12, 1},
		{0xfff, 12, 0},
		{0xf, 4, 0},
		{0x7, 4, 1},
		{0xab, 8, 1},
		// Bits above the width are ignored.
		{0x1ab, 8, 1},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, Parity(tc.value, tc.bits), "parity of %#x/%d", tc.value, tc.bits)
	}
}

func TestParityRoundTrip(t *testing.T) {
	for _, bits := range []int{4, 8, 12} {
		for v := uint16(0); v < 1<<uint(bits); v++ {
			p := Parity(v, bits)
			require.True(t, CheckParity(v, bits, p))
			require.False(t, CheckParity(v, bits, p^1))
			for i := 0; i < bits; i++ {
				require.False(t, CheckParity(v^(1<<uint(i)), bits, p),
					"flip bit %d of %#x/%d", i, v, bits)
			}
		}
	}
}
