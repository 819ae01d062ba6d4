// Package sx126x drives Semtech SX1261/SX1262 LoRa modems over SPI.
// Unlike the SX127x family the chip is programmed through a command
// interface rather than a register map.
package sx126x

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/radiotalks/lora.go/pkg/hal"
	"github.com/radiotalks/lora.go/pkg/lora"
)

// Variant selects the chip, which differ in their power amplifier.
type Variant int

const (
	// SX1261 has the low-power PA (up to +15 dBm).
	SX1261 Variant = iota + 1
	// SX1262 has the high-power PA (up to +22 dBm).
	SX1262
)

// Pins are the control lines beyond the SPI bus. Busy is required by
// the command protocol; Reset and DIO1 are optional.
type Pins struct {
	Reset hal.OutputPin
	Busy  hal.InputPin
	DIO1  hal.InterruptPin
}

// Options carry board wiring choices.
type Options struct {
	Variant Variant
	// DIO2RfSwitch hands the DIO2 line to the chip as TX/RX switch
	// control, a common module wiring.
	DIO2RfSwitch bool
}

// Radio implements lora.Driver for the SX126x family.
type Radio struct {
	spi  hal.SPI
	pins Pins
	opts Options

	cfg lora.Config

	eventMu sync.Mutex
	onEvent func()
	stop    func()
}

const busyTimeout = 10 * time.Millisecond

// New resets the chip (if a reset pin is wired) and returns an
// unconfigured Radio.
func New(spi hal.SPI, pins Pins, opts Options) (*Radio, error) {
	if pins.Busy == nil {
		return nil, fmt.Errorf("sx126x: busy pin is required")
	}
	if opts.Variant != SX1261 && opts.Variant != SX1262 {
		return nil, fmt.Errorf("sx126x: variant must be SX1261 or SX1262")
	}
	r := &Radio{spi: spi, pins: pins, opts: opts}
	if pins.Reset != nil {
		if err := r.reset(); err != nil {
			return nil, err
		}
	}
	if pins.DIO1 != nil {
		stop, err := pins.DIO1.Watch(r.dispatch)
		if err != nil {
			return nil, fmt.Errorf("sx126x: watch DIO1: %v", err)
		}
		r.stop = stop
	}
	return r, nil
}

// reset pulses the active-low reset line (datasheet 8.1).
func (r *Radio) reset() error {
	if err := r.pins.Reset.Set(false); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	if err := r.pins.Reset.Set(true); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

func (r *Radio) dispatch() {
	r.eventMu.Lock()
	fn := r.onEvent
	r.eventMu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnEvent implements lora.Driver.
func (r *Radio) OnEvent(fn func()) {
	r.eventMu.Lock()
	r.onEvent = fn
	r.eventMu.Unlock()
}

// Close implements lora.Driver.
func (r *Radio) Close() error {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
	return nil
}

// cmd waits for the busy line and issues a command frame.
func (r *Radio) cmd(opcode byte, params ...byte) error {
	ok, err := hal.WaitLow(r.pins.Busy, busyTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sx126x: busy timeout before command %#02x", opcode)
	}
	w := make([]byte, len(params)+1)
	w[0] = opcode
	copy(w[1:], params)
	return r.spi.Tx(w, nil)
}

// read issues a command and returns n response bytes. The response
// starts after the opcode and one status byte.
func (r *Radio) read(opcode byte, n int, params ...byte) ([]byte, error) {
	ok, err := hal.WaitLow(r.pins.Busy, busyTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sx126x: busy timeout before command %#02x", opcode)
	}
	w := make([]byte, 2+len(params)+n)
	w[0] = opcode
	copy(w[2:], params)
	buf := make([]byte, len(w))
	if err := r.spi.Tx(w, buf); err != nil {
		return nil, err
	}
	return buf[2+len(params):], nil
}

func (r *Radio) writeRegister(addr uint16, data ...byte) error {
	params := append([]byte{byte(addr >> 8), byte(addr)}, data...)
	return r.cmd(cmdWriteRegister, params...)
}

// Configure implements lora.Driver.
func (r *Radio) Configure(cfg lora.Config) error {
	// SF5..SF12 are all valid on this chip.
	if err := r.cmd(cmdSetStandby, standbyRC); err != nil {
		return err
	}
	if err := r.cmd(cmdSetPacketType, packetTypeLoRa); err != nil {
		return err
	}
	if r.opts.DIO2RfSwitch {
		if err := r.cmd(cmdSetDIO2AsRfSwitch, 0x01); err != nil {
			return err
		}
	}

	frf := uint64(cfg.Frequency) << 25 / 32000000
	if err := r.cmd(cmdSetRfFrequency,
		byte(frf>>24), byte(frf>>16), byte(frf>>8), byte(frf)); err != nil {
		return err
	}

	if err := r.setPA(cfg.TxPower, cfg.PARampUs); err != nil {
		return err
	}
	if err := r.cmd(cmdSetBufferBaseAddress, 0x00, 0x00); err != nil {
		return err
	}

	ldro := byte(0)
	if lora.LowDataRateEnabled(cfg) {
		ldro = 1
	}
	if err := r.cmd(cmdSetModulationParams,
		cfg.SpreadingFactor, bandwidthCode[cfg.Bandwidth], cfg.CodingRate-4, ldro); err != nil {
		return err
	}

	sync := cfg.SyncWord
	if sync == 0 {
		sync = syncWordPrivate
	}
	if err := r.writeRegister(regLoRaSyncWordMsb, byte(sync>>8), byte(sync)); err != nil {
		return err
	}

	// Route the completion interrupts to DIO1.
	mask := uint16(irqTxDone | irqRxDone | irqTimeout | irqCrcErr | irqHeaderErr)
	if err := r.cmd(cmdSetDioIrqParams,
		byte(mask>>8), byte(mask),
		byte(mask>>8), byte(mask),
		0x00, 0x00, 0x00, 0x00); err != nil {
		return err
	}

	r.cfg = cfg
	return nil
}

// setPA programs the PA configuration recommended in datasheet 13.1.14
// for the chip variant, then the TX power and ramp time.
func (r *Radio) setPA(dbm int8, rampUs uint16) error {
	var paCfg []byte
	var min, max int8
	if r.opts.Variant == SX1261 {
		paCfg = []byte{0x04, 0x00, 0x01, 0x01}
		min, max = -17, 14
	} else {
		paCfg = []byte{0x04, 0x07, 0x00, 0x01}
		min, max = -9, 22
	}
	if err := r.cmd(cmdSetPaConfig, paCfg...); err != nil {
		return err
	}
	if dbm < min {
		dbm = min
	}
	if dbm > max {
		dbm = max
	}
	if rampUs == 0 {
		rampUs = 40
	}
	ramp := byte(0)
	for i, us := range paRampUs {
		ramp = byte(i)
		if us >= rampUs {
			break
		}
	}
	return r.cmd(cmdSetTxParams, byte(dbm), ramp)
}

// setPacketParams applies the per-operation packet parameters.
func (r *Radio) setPacketParams(payloadLen uint8, invertIQ bool) error {
	header := byte(0x00) // explicit
	if r.cfg.ImplicitHeader {
		header = 0x01
	}
	crc := byte(0x01)
	if r.cfg.DisableCRC {
		crc = 0x00
	}
	iq := byte(0x00)
	if invertIQ {
		iq = 0x01
	}
	return r.cmd(cmdSetPacketParams,
		byte(r.cfg.PreambleLength>>8), byte(r.cfg.PreambleLength),
		header, payloadLen, crc, iq)
}

// Standby implements lora.Driver.
func (r *Radio) Standby() error {
	if err := r.cmd(cmdSetStandby, standbyRC); err != nil {
		return err
	}
	return r.cmd(cmdClearIrqStatus, 0xff, 0xff)
}

// Sleep implements lora.Driver. Warm start retains the configuration.
func (r *Radio) Sleep() error {
	return r.cmd(cmdSetSleep, 0x04)
}

// Idle implements lora.Driver.
func (r *Radio) Idle() (bool, error) {
	status, err := r.readStatus()
	if err != nil {
		return false, err
	}
	mode := status >> 4 & 0x7
	return mode == chipModeStbyRC || mode == chipModeStbyXOSC, nil
}

// readStatus issues GetStatus and returns the status byte.
func (r *Radio) readStatus() (byte, error) {
	ok, err := hal.WaitLow(r.pins.Busy, busyTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("sx126x: busy timeout before GetStatus")
	}
	w := []byte{cmdGetStatus, 0}
	buf := []byte{0, 0}
	if err := r.spi.Tx(w, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// StartRecv implements lora.Driver. With a timeout the hardware RX
// timer is armed (15.625us ticks, clamped to its 24-bit range); the
// modem core re-arms until its soft deadline. Without one the
// receiver runs continuously.
func (r *Radio) StartRecv(timeout time.Duration, length uint8) (bool, error) {
	if err := r.Standby(); err != nil {
		return false, err
	}
	if err := r.setPacketParams(length, r.cfg.InvertIQRx); err != nil {
		return false, err
	}
	ticks := uint32(rxContinuous)
	if timeout > 0 {
		t := timeout.Nanoseconds() / rxTickNs
		if t < 1 {
			t = 1
		}
		if t > rxTimeoutMax {
			t = rxTimeoutMax
		}
		ticks = uint32(t)
	}
	glog.V(3).Infof("sx126x: rx ticks=%#06x timeout=%v", ticks, timeout)
	if err := r.cmd(cmdSetRx, byte(ticks>>16), byte(ticks>>8), byte(ticks)); err != nil {
		return false, err
	}
	return r.pins.DIO1 != nil, nil
}

// PrepareSend implements lora.Driver.
func (r *Radio) PrepareSend(payload []byte) error {
	if err := r.Standby(); err != nil {
		return err
	}
	if err := r.setPacketParams(uint8(len(payload)), r.cfg.InvertIQTx); err != nil {
		return err
	}
	params := append([]byte{0x00}, payload...)
	return r.cmd(cmdWriteBuffer, params...)
}

// StartSend implements lora.Driver. No TX timeout is armed; the modem
// core knows the expected time on air.
func (r *Radio) StartSend() (bool, error) {
	if err := r.cmd(cmdSetTx, 0x00, 0x00, 0x00); err != nil {
		return false, err
	}
	return r.pins.DIO1 != nil, nil
}

// Events implements lora.Driver.
func (r *Radio) Events() (lora.Events, error) {
	res, err := r.read(cmdGetIrqStatus, 2)
	if err != nil {
		return 0, err
	}
	flags := uint16(res[0])<<8 | uint16(res[1])
	var ev lora.Events
	if flags&irqRxDone != 0 {
		ev |= lora.EventRxDone
	}
	if flags&irqTxDone != 0 {
		ev |= lora.EventTxDone
	}
	if flags&(irqCrcErr|irqHeaderErr) != 0 {
		ev |= lora.EventCRCError
	}
	if flags&irqTimeout != 0 {
		ev |= lora.EventRxTimeout
	}
	return ev, nil
}

// ClearEvents implements lora.Driver.
func (r *Radio) ClearEvents(ev lora.Events) error {
	var flags uint16
	if ev&lora.EventRxDone != 0 {
		flags |= irqRxDone
	}
	if ev&lora.EventTxDone != 0 {
		flags |= irqTxDone
	}
	if ev&lora.EventCRCError != 0 {
		flags |= irqCrcErr | irqHeaderErr
	}
	if ev&lora.EventRxTimeout != 0 {
		flags |= irqTimeout
	}
	if flags == 0 {
		return nil
	}
	return r.cmd(cmdClearIrqStatus, byte(flags>>8), byte(flags))
}

// ReadPacket implements lora.Driver.
func (r *Radio) ReadPacket(ev lora.Events) (*lora.RxPacket, error) {
	status, err := r.read(cmdGetRxBufferStatus, 2)
	if err != nil {
		return nil, err
	}
	n, offset := int(status[0]), status[1]

	w := make([]byte, 3+n)
	w[0], w[1] = cmdReadBuffer, offset
	buf := make([]byte, len(w))
	ok, err := hal.WaitLow(r.pins.Busy, busyTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sx126x: busy timeout before ReadBuffer")
	}
	if err := r.spi.Tx(w, buf); err != nil {
		return nil, err
	}

	pktStatus, err := r.read(cmdGetPacketStatus, 3)
	if err != nil {
		return nil, err
	}
	return &lora.RxPacket{
		Payload:  buf[3:],
		RSSI:     -int16(pktStatus[0]) / 2,
		SNR:      float32(int8(pktStatus[1])) / 4,
		ValidCRC: ev&lora.EventCRCError == 0,
	}, nil
}

// SymbolOffsets implements lora.Driver. SF5 and SF6 on this chip use
// a longer preamble (6.25 symbols) and eight fewer payload bits than
// the shared time-on-air equation assumes.
func (r *Radio) SymbolOffsets() (int, int) {
	if r.cfg.SpreadingFactor == 5 || r.cfg.SpreadingFactor == 6 {
		return 2, -8
	}
	return 0, 0
}
