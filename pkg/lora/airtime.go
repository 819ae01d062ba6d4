package lora

import "time"

// SymbolTimeUs returns the duration of one symbol in microseconds.
func SymbolTimeUs(cfg Config) int {
	return 1000000 * (1 << cfg.SpreadingFactor) / int(cfg.Bandwidth)
}

// LowDataRateEnabled reports whether Low Data Rate Optimization is in
// effect. Drivers must apply the same rule when programming the
// radio, or the time-on-air result will not match reality.
func LowDataRateEnabled(cfg Config) bool {
	return SymbolTimeUs(cfg) >= 16000
}

// nSymbolsX4 returns the number of symbols in a packet of the given
// payload length, times 4. The equation has a fractional term, so the
// x4 form keeps the arithmetic integral. References: SX1261/2
// datasheet 6.1.4 "LoRa Time-on-Air", SX1276 datasheet 4.1.1.
//
// symOffset and bitOffset are the Driver.SymbolOffsets values: SX126x
// SF5/SF6 adds two preamble symbols and subtracts eight payload bits.
func nSymbolsX4(cfg Config, payloadLen, symOffset, bitOffset int) int {
	sf := int(cfg.SpreadingFactor)

	// Payload bit count: the expression inside max(..., 0) in the
	// datasheet.
	bits := 8*payloadLen + 8 + bitOffset - 4*sf
	if !cfg.DisableCRC {
		bits += 16
	}
	if !cfg.ImplicitHeader {
		bits += 20
	}
	if bits < 0 {
		bits = 0
	}

	// Bits per symbol, reduced by LDR optimization.
	bps := 4 * sf
	if LowDataRateEnabled(cfg) {
		bps = 4 * (sf - 2)
	}

	// 17 is the fixed 4.25 symbol preamble portion, times 4.
	return 17 + 4*(int(cfg.PreambleLength)+symOffset+8+
		((bits+bps-1)/bps)*int(cfg.CodingRate))
}

// NSymbolsX4 returns the symbol count (times 4) for a packet of
// payloadLen bytes under the current configuration.
func (m *Modem) NSymbolsX4(payloadLen int) int {
	symOff, bitOff := m.drv.SymbolOffsets()
	return nSymbolsX4(m.cfg, payloadLen, symOff, bitOff)
}

// TimeOnAir returns the expected transmission time of a packet of
// payloadLen bytes under the current configuration.
func (m *Modem) TimeOnAir(payloadLen int) time.Duration {
	us := SymbolTimeUs(m.cfg) * m.NSymbolsX4(payloadLen) / 4
	return time.Duration(us) * time.Microsecond
}
