// Package sx127x drives Semtech SX1276/77/78/79 (and RFM9x) LoRa
// modems over SPI.
package sx127x

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/radiotalks/lora.go/pkg/hal"
	"github.com/radiotalks/lora.go/pkg/lora"
)

// Pins are the control lines beyond the SPI bus. All are optional:
// without Reset the chip is assumed to be powered up already, without
// DIO0 completion is detected by polling.
type Pins struct {
	Reset hal.OutputPin
	DIO0  hal.InterruptPin
}

// Radio implements lora.Driver for the SX127x family.
type Radio struct {
	spi  hal.SPI
	pins Pins

	cfg          lora.Config
	modemConfig2 byte
	invertCur    bool // current invert IQ register state
	invertKnown  bool

	eventMu sync.Mutex
	onEvent func()
	stop    func()
}

// New resets the chip (if a reset pin is wired), verifies the silicon
// version and returns an unconfigured Radio.
func New(spi hal.SPI, pins Pins) (*Radio, error) {
	r := &Radio{spi: spi, pins: pins}
	if pins.Reset != nil {
		if err := r.reset(); err != nil {
			return nil, err
		}
	}
	v, err := r.readReg(regVersion)
	if err != nil {
		return nil, err
	}
	if v != chipVersion {
		return nil, fmt.Errorf("sx127x: unexpected chip version %#02x", v)
	}
	if pins.DIO0 != nil {
		stop, err := pins.DIO0.Watch(r.dispatch)
		if err != nil {
			return nil, fmt.Errorf("sx127x: watch DIO0: %v", err)
		}
		r.stop = stop
	}
	return r, nil
}

// reset pulses the active-low reset line per datasheet 7.2.2.
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

// Configure implements lora.Driver.
func (r *Radio) Configure(cfg lora.Config) error {
	if cfg.SpreadingFactor < 6 {
		return &lora.ConfigError{Field: "SpreadingFactor"}
	}
	if cfg.SpreadingFactor == 6 && !cfg.ImplicitHeader {
		// SF6 has no explicit header mode on this chip.
		return &lora.ConfigError{Field: "ImplicitHeader"}
	}

	// The LoRa mode bit can only be flipped in sleep.
	if err := r.writeReg(regOpMode, opModeLongRange|opModeSleep); err != nil {
		return err
	}
	if err := r.writeReg(regOpMode, opModeLongRange|opModeStandby); err != nil {
		return err
	}

	frf := uint64(cfg.Frequency) << 19 / 32000000
	mc1 := bandwidthIndex[cfg.Bandwidth]<<4 | (cfg.CodingRate-4)<<1
	if cfg.ImplicitHeader {
		mc1 |= 0x01
	}
	mc2 := cfg.SpreadingFactor << 4
	if !cfg.DisableCRC {
		mc2 |= 0x04
	}
	mc3 := byte(0x04) // AgcAutoOn
	if lora.LowDataRateEnabled(cfg) {
		mc3 |= 0x08
	}
	detectOpt, detectThresh := byte(0x03), byte(0x0a)
	if cfg.SpreadingFactor == 6 {
		detectOpt, detectThresh = 0x05, 0x0c
	}

	regs := []struct {
		addr byte
		val  byte
	}{
		{regFrfMsb, byte(frf >> 16)},
		{regFrfMid, byte(frf >> 8)},
		{regFrfLsb, byte(frf)},
		{regModemConfig1, mc1},
		{regModemConfig2, mc2},
		{regModemConfig3, mc3},
		{regDetectionOptimize, detectOpt},
		{regDetectionThresh, detectThresh},
		{regPreambleMsb, byte(cfg.PreambleLength >> 8)},
		{regPreambleLsb, byte(cfg.PreambleLength)},
		{regFifoTxBaseAddr, 0x00},
		{regFifoRxBaseAddr, 0x00},
		{regLna, 0x23}, // max gain, boost on
		{regPaConfig, paConfig(cfg.TxPower)},
	}
	if cfg.SyncWord != 0 {
		regs = append(regs, struct{ addr, val byte }{regSyncWord, byte(cfg.SyncWord)})
	}
	if cfg.PARampUs != 0 {
		idx, err := rampIndex(cfg.PARampUs)
		if err != nil {
			return err
		}
		regs = append(regs, struct{ addr, val byte }{regPaRamp, idx})
	}
	for _, rv := range regs {
		if err := r.writeReg(rv.addr, rv.val); err != nil {
			return err
		}
	}
	r.cfg = cfg
	r.modemConfig2 = mc2
	r.invertKnown = false
	return nil
}

// paConfig selects the PA_BOOST output, the one wired on common
// SX1276 modules (RFM95/96, HopeRF). Power is clamped to 2..17 dBm.
func paConfig(dbm int8) byte {
	if dbm < 2 {
		dbm = 2
	}
	if dbm > 17 {
		dbm = 17
	}
	return paBoost | byte(dbm-2)
}

// rampIndex returns the RegPaRamp value for the shortest supported
// ramp time >= us.
func rampIndex(us uint16) (byte, error) {
	for i := len(paRampUs) - 1; i >= 0; i-- {
		if paRampUs[i] >= us {
			return byte(i), nil
		}
	}
	return 0, &lora.ConfigError{Field: "PARampUs"}
}

// setInvertIQ applies the invert setting for the upcoming operation.
func (r *Radio) setInvertIQ(invert bool) error {
	if r.invertKnown && r.invertCur == invert {
		return nil
	}
	iq, iq2 := byte(0x27), byte(invertIQ2Off) // datasheet reset values
	if invert {
		iq |= invertIQRx | invertIQTx
		iq2 = invertIQ2On
	}
	if err := r.writeReg(regInvertIQ, iq); err != nil {
		return err
	}
	if err := r.writeReg(regInvertIQ2, iq2); err != nil {
		return err
	}
	r.invertCur, r.invertKnown = invert, true
	return nil
}

// Standby implements lora.Driver.
func (r *Radio) Standby() error {
	if err := r.writeReg(regOpMode, opModeLongRange|opModeStandby); err != nil {
		return err
	}
	return r.writeReg(regIrqFlags, 0xff)
}

// Sleep implements lora.Driver.
func (r *Radio) Sleep() error {
	return r.writeReg(regOpMode, opModeLongRange|opModeSleep)
}

// Idle implements lora.Driver.
func (r *Radio) Idle() (bool, error) {
	mode, err := r.readReg(regOpMode)
	if err != nil {
		return false, err
	}
	mode &= opModeMask
	return mode == opModeSleep || mode == opModeStandby, nil
}

// StartRecv implements lora.Driver. With a timeout the single-receive
// mode is used with the hardware symbol timeout clamped to its
// 10-bit maximum; the modem core re-arms until its soft deadline.
func (r *Radio) StartRecv(timeout time.Duration, length uint8) (bool, error) {
	if err := r.Standby(); err != nil {
		return false, err
	}
	if err := r.setInvertIQ(r.cfg.InvertIQRx); err != nil {
		return false, err
	}
	if r.cfg.ImplicitHeader {
		if err := r.writeReg(regPayloadLength, length); err != nil {
			return false, err
		}
	}
	if err := r.writeReg(regDioMapping1, dio0RxDone); err != nil {
		return false, err
	}
	if err := r.writeReg(regFifoAddrPtr, 0x00); err != nil {
		return false, err
	}

	mode := byte(opModeRxContinuous)
	if timeout > 0 {
		symbols := int64(timeout/time.Microsecond) / int64(lora.SymbolTimeUs(r.cfg))
		if symbols < 4 {
			symbols = 4
		}
		if symbols > 0x3ff {
			symbols = 0x3ff
		}
		// Symbol timeout MSBs live in RegModemConfig2 bits 1:0.
		if err := r.writeReg(regModemConfig2, r.modemConfig2|byte(symbols>>8)); err != nil {
			return false, err
		}
		if err := r.writeReg(regSymbTimeoutLsb, byte(symbols)); err != nil {
			return false, err
		}
		mode = opModeRxSingle
	}
	glog.V(3).Infof("sx127x: rx mode=%#02x timeout=%v", mode, timeout)
	if err := r.writeReg(regOpMode, opModeLongRange|mode); err != nil {
		return false, err
	}
	return r.pins.DIO0 != nil, nil
}

// PrepareSend implements lora.Driver.
func (r *Radio) PrepareSend(payload []byte) error {
	if err := r.Standby(); err != nil {
		return err
	}
	if err := r.setInvertIQ(r.cfg.InvertIQTx); err != nil {
		return err
	}
	if err := r.writeReg(regDioMapping1, dio0TxDone); err != nil {
		return err
	}
	if err := r.writeReg(regFifoAddrPtr, 0x00); err != nil {
		return err
	}
	if err := r.writeReg(regPayloadLength, byte(len(payload))); err != nil {
		return err
	}
	w := make([]byte, len(payload)+1)
	w[0] = regFifo | 0x80
	copy(w[1:], payload)
	return r.spi.Tx(w, nil)
}

// StartSend implements lora.Driver.
func (r *Radio) StartSend() (bool, error) {
	if err := r.writeReg(regOpMode, opModeLongRange|opModeTx); err != nil {
		return false, err
	}
	return r.pins.DIO0 != nil, nil
}

// Events implements lora.Driver.
func (r *Radio) Events() (lora.Events, error) {
	flags, err := r.readReg(regIrqFlags)
	if err != nil {
		return 0, err
	}
	var ev lora.Events
	if flags&irqRxDone != 0 {
		ev |= lora.EventRxDone
	}
	if flags&irqTxDone != 0 {
		ev |= lora.EventTxDone
	}
	if flags&irqPayloadCrcError != 0 {
		ev |= lora.EventCRCError
	}
	if flags&irqRxTimeout != 0 {
		ev |= lora.EventRxTimeout
	}
	return ev, nil
}

// ClearEvents implements lora.Driver.
func (r *Radio) ClearEvents(ev lora.Events) error {
	var flags byte
	if ev&lora.EventRxDone != 0 {
		flags |= irqRxDone
	}
	if ev&lora.EventTxDone != 0 {
		flags |= irqTxDone
	}
	if ev&lora.EventCRCError != 0 {
		flags |= irqPayloadCrcError
	}
	if ev&lora.EventRxTimeout != 0 {
		flags |= irqRxTimeout
	}
	if flags == 0 {
		return nil
	}
	// Writing a 1 clears the bit.
	return r.writeReg(regIrqFlags, flags)
}

// ReadPacket implements lora.Driver.
func (r *Radio) ReadPacket(ev lora.Events) (*lora.RxPacket, error) {
	n, err := r.readReg(regRxNbBytes)
	if err != nil {
		return nil, err
	}
	cur, err := r.readReg(regFifoRxCurrentAddr)
	if err != nil {
		return nil, err
	}
	if err := r.writeReg(regFifoAddrPtr, cur); err != nil {
		return nil, err
	}
	w := make([]byte, int(n)+1)
	buf := make([]byte, int(n)+1)
	w[0] = regFifo
	if err := r.spi.Tx(w, buf); err != nil {
		return nil, err
	}

	snrRaw, err := r.readReg(regPktSnrValue)
	if err != nil {
		return nil, err
	}
	rssiRaw, err := r.readReg(regPktRssiValue)
	if err != nil {
		return nil, err
	}
	offset := int16(rssiOffsetLF)
	if r.cfg.Frequency >= rfMidBand {
		offset = rssiOffsetHF
	}
	return &lora.RxPacket{
		Payload:  buf[1:],
		SNR:      float32(int8(snrRaw)) / 4,
		RSSI:     offset + int16(rssiRaw),
		ValidCRC: ev&lora.EventCRCError == 0,
	}, nil
}

// SymbolOffsets implements lora.Driver.
func (r *Radio) SymbolOffsets() (int, int) { return 0, 0 }

func (r *Radio) readReg(addr byte) (byte, error) {
	w := []byte{addr &^ 0x80, 0}
	buf := []byte{0, 0}
	if err := r.spi.Tx(w, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

func (r *Radio) writeReg(addr, val byte) error {
	return r.spi.Tx([]byte{addr | 0x80, val}, nil)
}
