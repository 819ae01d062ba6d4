// Package radio builds a modem from command line flags, shared by the
// daemons, the shell and the examples.
package radio

import (
	"flag"
	"fmt"

	"github.com/radiotalks/lora.go/pkg/hal"
	"github.com/radiotalks/lora.go/pkg/hal/periphhal"
	"github.com/radiotalks/lora.go/pkg/lora"
	"github.com/radiotalks/lora.go/pkg/lora/sx126x"
	"github.com/radiotalks/lora.go/pkg/lora/sx127x"
)

// Flags describe the modem wiring and radio settings.
type Flags struct {
	Driver string // sx127x, sx1261 or sx1262
	SPI    string // periph SPI port name
	SPIHz  int64

	// Pin names in the periph GPIO registry.
	Reset string
	DIO0  string // sx127x interrupt line
	DIO1  string // sx126x interrupt line
	Busy  string // sx126x busy line

	DIO2RfSwitch bool

	Frequency  uint
	SF         uint
	Bandwidth  uint
	CodingRate uint
	Preamble   uint
	Power      int
	SyncWord   uint
}

var defaultFlags = Flags{
	Driver:     "sx127x",
	SPI:        "SPI0.0",
	SPIHz:      2000000,
	Frequency:  916000000,
	SF:         8,
	Bandwidth:  500000,
	CodingRate: 8,
	Preamble:   12,
}

// SetupFlags registers the command line flags.
func SetupFlags() {
	f := &defaultFlags
	flag.StringVar(&f.Driver, "driver", f.Driver, "Modem driver: sx127x, sx1261 or sx1262")
	flag.StringVar(&f.SPI, "spi", f.SPI, "SPI port name")
	flag.Int64Var(&f.SPIHz, "spi-hz", f.SPIHz, "SPI clock frequency")
	flag.StringVar(&f.Reset, "reset", f.Reset, "Reset pin name (optional)")
	flag.StringVar(&f.DIO0, "dio0", f.DIO0, "DIO0 interrupt pin name (sx127x, optional)")
	flag.StringVar(&f.DIO1, "dio1", f.DIO1, "DIO1 interrupt pin name (sx126x, optional)")
	flag.StringVar(&f.Busy, "busy", f.Busy, "BUSY pin name (sx126x, required)")
	flag.BoolVar(&f.DIO2RfSwitch, "dio2-rf-switch", f.DIO2RfSwitch, "Use DIO2 as RF switch control (sx126x)")
	flag.UintVar(&f.Frequency, "freq", f.Frequency, "RF frequency in Hz")
	flag.UintVar(&f.SF, "sf", f.SF, "Spreading factor")
	flag.UintVar(&f.Bandwidth, "bw", f.Bandwidth, "Bandwidth in Hz")
	flag.UintVar(&f.CodingRate, "cr", f.CodingRate, "Coding rate denominator (5..8)")
	flag.UintVar(&f.Preamble, "preamble", f.Preamble, "Preamble length in symbols")
	flag.IntVar(&f.Power, "power", f.Power, "TX power in dBm")
	flag.UintVar(&f.SyncWord, "syncword", f.SyncWord, "Sync word override (0 = chip default)")
}

// Default returns the flag-populated Flags.
func Default() *Flags {
	f := defaultFlags
	return &f
}

// LoraConfig returns the lora.Config described by the flags.
func (f *Flags) LoraConfig() lora.Config {
	return lora.Config{
		Frequency:       uint32(f.Frequency),
		SpreadingFactor: uint8(f.SF),
		Bandwidth:       uint32(f.Bandwidth),
		CodingRate:      uint8(f.CodingRate),
		PreambleLength:  uint16(f.Preamble),
		TxPower:         int8(f.Power),
		SyncWord:        uint16(f.SyncWord),
	}
}

// OpenModem opens the SPI bus and pins and returns a configured
// modem. The returned closer releases the SPI port.
func (f *Flags) OpenModem() (*lora.Modem, func(), error) {
	spi, err := periphhal.OpenSPI(f.SPI, f.SPIHz)
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() { spi.Close() }

	drv, err := f.openDriver(spi)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	modem, err := lora.NewModem(drv, f.LoraConfig())
	if err != nil {
		drv.Close()
		closeAll()
		return nil, nil, err
	}
	return modem, closeAll, nil
}

func (f *Flags) openDriver(spi hal.SPI) (lora.Driver, error) {
	reset, err := optionalPin(f.Reset)
	if err != nil {
		return nil, err
	}
	switch f.Driver {
	case "sx127x":
		dio0, err := optionalPin(f.DIO0)
		if err != nil {
			return nil, err
		}
		pins := sx127x.Pins{}
		if reset != nil {
			pins.Reset = reset
		}
		if dio0 != nil {
			pins.DIO0 = dio0
		}
		return sx127x.New(spi, pins)
	case "sx1261", "sx1262":
		if f.Busy == "" {
			return nil, fmt.Errorf("-busy pin is required for %s", f.Driver)
		}
		busy, err := periphhal.OpenPin(f.Busy)
		if err != nil {
			return nil, err
		}
		dio1, err := optionalPin(f.DIO1)
		if err != nil {
			return nil, err
		}
		variant := sx126x.SX1261
		if f.Driver == "sx1262" {
			variant = sx126x.SX1262
		}
		pins := sx126x.Pins{Busy: busy}
		if reset != nil {
			pins.Reset = reset
		}
		if dio1 != nil {
			pins.DIO1 = dio1
		}
		return sx126x.New(spi, pins, sx126x.Options{
			Variant:      variant,
			DIO2RfSwitch: f.DIO2RfSwitch,
		})
	default:
		return nil, fmt.Errorf("unknown driver %q", f.Driver)
	}
}

func optionalPin(name string) (*periphhal.Pin, error) {
	if name == "" {
		return nil, nil
	}
	return periphhal.OpenPin(name)
}
