// Package haltest provides in-memory hal implementations for driver
// tests.
package haltest

import (
	"sync"
)

// SPI records transactions and replies from a scripted response
// queue. If the queue is empty the read buffer is filled with zeros.
type SPI struct {
	mu        sync.Mutex
	Writes    [][]byte
	responses [][]byte
}

// Queue appends a response frame returned by a later transaction.
func (s *SPI) Queue(r []byte) {
	s.mu.Lock()
	s.responses = append(s.responses, r)
	s.mu.Unlock()
}

// Tx implements hal.SPI.
func (s *SPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes = append(s.Writes, append([]byte(nil), w...))
	if r == nil {
		return nil
	}
	for i := range r {
		r[i] = 0
	}
	if len(s.responses) > 0 {
		copy(r, s.responses[0])
		s.responses = s.responses[1:]
	}
	return nil
}

// RegisterBus emulates a register-addressed SPI peripheral in the
// SX127x style: the first byte is the register address with the MSB
// set for writes, remaining bytes transfer register data with
// auto-incrementing address. Register 0 is a FIFO: writes append to
// Fifo, reads consume from its front.
type RegisterBus struct {
	mu   sync.Mutex
	Regs map[byte]byte
	Fifo []byte
}

// NewRegisterBus creates an empty RegisterBus.
func NewRegisterBus() *RegisterBus {
	return &RegisterBus{Regs: make(map[byte]byte)}
}

// Tx implements hal.SPI.
func (b *RegisterBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(w) == 0 {
		return nil
	}
	addr := w[0]
	write := addr&0x80 != 0
	addr &= 0x7f
	for i := 1; i < len(w); i++ {
		if addr == 0 { // FIFO register does not auto-increment
			if write {
				b.Fifo = append(b.Fifo, w[i])
			} else if r != nil && i < len(r) && len(b.Fifo) > 0 {
				r[i] = b.Fifo[0]
				b.Fifo = b.Fifo[1:]
			}
			continue
		}
		if write {
			b.Regs[addr] = w[i]
		} else if r != nil && i < len(r) {
			r[i] = b.Regs[addr]
		}
		addr++
	}
	return nil
}

// Set stores a register value.
func (b *RegisterBus) Set(addr, val byte) {
	b.mu.Lock()
	b.Regs[addr] = val
	b.mu.Unlock()
}

// Reg reads back a register value.
func (b *RegisterBus) Reg(addr byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Regs[addr]
}

// Pin is an in-memory input/output pin.
type Pin struct {
	mu      sync.Mutex
	high    bool
	watcher func()
}

// Set implements hal.OutputPin.
func (p *Pin) Set(high bool) error {
	p.mu.Lock()
	p.high = high
	p.mu.Unlock()
	return nil
}

// Get implements hal.InputPin.
func (p *Pin) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high, nil
}

// Watch implements hal.InterruptPin.
func (p *Pin) Watch(fn func()) (func(), error) {
	p.mu.Lock()
	p.watcher = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.watcher = nil
		p.mu.Unlock()
	}, nil
}

// Trigger simulates a rising edge.
func (p *Pin) Trigger() {
	p.mu.Lock()
	fn := p.watcher
	p.high = true
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
