// Package periphhal backs the hal interfaces with periph.io, for
// modems wired to a host computer (e.g. Raspberry Pi).
package periphhal

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var initOnce sync.Once
var initErr error

// Init initializes the periph host drivers. It is safe to call more
// than once.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// SPI wraps a periph SPI connection.
type SPI struct {
	Port spi.PortCloser
	Conn spi.Conn
}

// OpenSPI opens an SPI port by registry name (e.g. "SPI0.0") at the
// given clock frequency.
func OpenSPI(name string, hz int64) (*SPI, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open SPI %s: %v", name, err)
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI %s: %v", name, err)
	}
	return &SPI{Port: port, Conn: conn}, nil
}

// Tx implements hal.SPI.
func (s *SPI) Tx(w, r []byte) error { return s.Conn.Tx(w, r) }

// Close implements io.Closer.
func (s *SPI) Close() error { return s.Port.Close() }

// Pin wraps a periph GPIO pin.
type Pin struct {
	pin gpio.PinIO
}

// OpenPin looks up a GPIO pin by registry name (e.g. "GPIO25").
func OpenPin(name string) (*Pin, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no GPIO pin %q", name)
	}
	return &Pin{pin: p}, nil
}

// Set implements hal.OutputPin.
func (p *Pin) Set(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

// Get implements hal.InputPin.
func (p *Pin) Get() (bool, error) {
	return bool(p.pin.Read()), nil
}

// Watch implements hal.InterruptPin. The pin is configured for
// rising-edge detection and watched from a dedicated goroutine.
func (p *Pin) Watch(fn func()) (func(), error) {
	if err := p.pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, err
	}
	stopCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			if p.pin.WaitForEdge(100 * time.Millisecond) {
				fn()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }, nil
}
