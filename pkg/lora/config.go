package lora

import "fmt"

// Default configuration values, matching the power-on-reset settings
// shared by the supported modem families.
const (
	DefaultSpreadingFactor = 7
	DefaultBandwidth       = 125000
	DefaultCodingRate      = 5
	DefaultPreambleLength  = 12
)

// MaxPayloadLength is the FIFO capacity of the supported modems.
const MaxPayloadLength = 255

// Config holds the radio settings shared by all modem drivers.
// The zero value of every field except Frequency selects the default.
type Config struct {
	// Frequency is the RF center frequency in Hz. Required.
	Frequency uint32

	// SpreadingFactor is the LoRa spreading factor, 5..12.
	// SF5 and SF6 are only supported by SX126x; SX127x supports 6..12.
	SpreadingFactor uint8

	// Bandwidth is the channel bandwidth in Hz (7800..500000).
	Bandwidth uint32

	// CodingRate selects the forward error correction rate 4/5..4/8,
	// expressed as the denominator (5..8).
	CodingRate uint8

	// PreambleLength is the programmed preamble length in symbols.
	PreambleLength uint16

	// TxPower is the transmit power in dBm. Drivers clamp it to the
	// range supported by the chip and PA configuration.
	TxPower int8

	// SyncWord overrides the chip default sync word when non-zero.
	// SX127x uses the low byte only.
	SyncWord uint16

	// PARampUs sets the PA ramp time in microseconds; 0 selects the
	// chip default. Values are rounded up to the next supported step.
	PARampUs uint16

	// DisableCRC turns off payload CRC generation and checking.
	DisableCRC bool

	// ImplicitHeader enables implicit (fixed length) header mode.
	// RxLength must be set for receiving.
	ImplicitHeader bool

	// RxLength is the expected payload length in implicit header
	// mode. Ignored in explicit mode.
	RxLength uint8

	// InvertIQRx / InvertIQTx invert the I and Q signals for receive
	// and transmit respectively.
	InvertIQRx bool
	InvertIQTx bool
}

var bandwidths = []uint32{
	7800, 10400, 15600, 20800, 31250, 41700, 62500, 125000, 250000, 500000,
}

// withDefaults returns a copy of c with zero fields replaced by the
// package defaults.
func (c Config) withDefaults() Config {
	if c.SpreadingFactor == 0 {
		c.SpreadingFactor = DefaultSpreadingFactor
	}
	if c.Bandwidth == 0 {
		c.Bandwidth = DefaultBandwidth
	}
	if c.CodingRate == 0 {
		c.CodingRate = DefaultCodingRate
	}
	if c.PreambleLength == 0 {
		c.PreambleLength = DefaultPreambleLength
	}
	return c
}

// validate checks the driver-independent constraints. Drivers apply
// the chip-specific ones (SF range, PA limits) in Configure.
func (c Config) validate() error {
	if c.Frequency == 0 {
		return &ConfigError{"Frequency"}
	}
	if c.SpreadingFactor < 5 || c.SpreadingFactor > 12 {
		return &ConfigError{"SpreadingFactor"}
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return &ConfigError{"CodingRate"}
	}
	ok := false
	for _, bw := range bandwidths {
		if c.Bandwidth == bw {
			ok = true
			break
		}
	}
	if !ok {
		return &ConfigError{"Bandwidth"}
	}
	if c.ImplicitHeader && c.RxLength == 0 {
		return &ConfigError{"RxLength"}
	}
	return nil
}

// DataRate returns the conventional datarate identifier for the
// configuration, e.g. "SF8BW500".
func (c Config) DataRate() string {
	c = c.withDefaults()
	return fmt.Sprintf("SF%dBW%g", c.SpreadingFactor, float64(c.Bandwidth)/1000)
}

// CodingRateID returns the conventional coding rate identifier, e.g.
// "4/5".
func (c Config) CodingRateID() string {
	c = c.withDefaults()
	return fmt.Sprintf("4/%d", c.CodingRate)
}
