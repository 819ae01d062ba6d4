package lora

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSymbolTimeUs(t *testing.T) {
	require.Equal(t, 1024, SymbolTimeUs(Config{SpreadingFactor: 7, Bandwidth: 125000}))
	require.Equal(t, 512, SymbolTimeUs(Config{SpreadingFactor: 8, Bandwidth: 500000}))
	require.Equal(t, 32768, SymbolTimeUs(Config{SpreadingFactor: 12, Bandwidth: 125000}))
}

func TestLowDataRateEnabled(t *testing.T) {
	require.False(t, LowDataRateEnabled(Config{SpreadingFactor: 7, Bandwidth: 125000}))
	require.True(t, LowDataRateEnabled(Config{SpreadingFactor: 11, Bandwidth: 125000}))
	require.True(t, LowDataRateEnabled(Config{SpreadingFactor: 12, Bandwidth: 125000}))
	require.False(t, LowDataRateEnabled(Config{SpreadingFactor: 12, Bandwidth: 500000}))
}

func TestNSymbolsX4(t *testing.T) {
	for _, tc := range []struct {
		name       string
		cfg        Config
		payloadLen int
		want       int
	}{
		{
			name: "sf7bw125",
			cfg: Config{
				SpreadingFactor: 7,
				Bandwidth:       125000,
				CodingRate:      5,
				PreambleLength:  12,
			},
			payloadLen: 32,
			want:       297,
		},
		{
			name: "sf12ldr",
			cfg: Config{
				SpreadingFactor: 12,
				Bandwidth:       125000,
				CodingRate:      5,
				PreambleLength:  12,
			},
			payloadLen: 12,
			want:       157,
		},
		{
			// The payload bit count goes negative and clamps to zero:
			// only preamble and fixed symbols remain.
			name: "clamped",
			cfg: Config{
				SpreadingFactor: 12,
				Bandwidth:       125000,
				CodingRate:      5,
				PreambleLength:  8,
				DisableCRC:      true,
				ImplicitHeader:  true,
				RxLength:        2,
			},
			payloadLen: 2,
			want:       17 + 4*(8+8),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, nSymbolsX4(tc.cfg, tc.payloadLen, 0, 0))
		})
	}
}

func TestTimeOnAir(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, Config{
		Frequency:       868000000,
		SpreadingFactor: 7,
		Bandwidth:       125000,
		CodingRate:      5,
	})
	require.NoError(t, err)
	require.Equal(t, 297, m.NSymbolsX4(32))
	require.Equal(t, 76032*time.Microsecond, m.TimeOnAir(32))

	require.NoError(t, m.Configure(Config{
		Frequency:       868000000,
		SpreadingFactor: 12,
		Bandwidth:       125000,
		CodingRate:      5,
	}))
	require.Equal(t, 157, m.NSymbolsX4(12))
	require.Equal(t, 1286144*time.Microsecond, m.TimeOnAir(12))
}

// Short spreading factors on SX126x shift the symbol and bit counts.
func TestNSymbolsX4Offsets(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, Config{
		Frequency:       916000000,
		SpreadingFactor: 5,
		Bandwidth:       500000,
		CodingRate:      5,
	})
	require.NoError(t, err)
	require.Equal(t, 257, m.NSymbolsX4(16))

	drv.mu.Lock()
	drv.symOff, drv.bitOff = 2, -8
	drv.mu.Unlock()
	// Two extra preamble symbols; the eight-bit reduction does not
	// cross a symbol boundary at this payload size.
	require.Equal(t, 265, m.NSymbolsX4(16))
}
