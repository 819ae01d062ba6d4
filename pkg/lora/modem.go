package lora

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Modem drives a LoRa radio through a chip Driver. It tracks the
// receive and send state so that a send can interrupt a receive and
// the receive resumes afterwards with its original deadline.
//
// A Modem is not safe for concurrent use; wrap it in an AsyncModem to
// drive it from more than one goroutine.
type Modem struct {
	// AntennaSwitch, if set, is switched around radio operations.
	AntennaSwitch AntennaSwitch

	// ReturnCRCError delivers packets that failed CRC (with
	// ValidCRC false) instead of dropping them.
	ReturnCRCError bool

	drv Driver
	cfg Config

	crcErrors uint32

	// Receive state. rxActive may stay true while the radio hardware
	// is transmitting: a send pauses the receive, checkRecv resumes
	// it.
	rxActive     bool
	rxDeadline   time.Time // zero when no timeout
	rxContinuous bool
	rxLength     uint8

	tx      bool
	willIRQ bool

	irqMu   sync.Mutex
	irqCh   chan struct{}
	lastIRQ time.Time
	cb      func()
}

// NewModem configures drv and returns a Modem over it.
func NewModem(drv Driver, cfg Config) (*Modem, error) {
	m := &Modem{
		drv:   drv,
		irqCh: make(chan struct{}),
	}
	drv.OnEvent(m.radioISR)
	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Configure applies a new radio configuration. Any operation in
// flight is cancelled.
func (m *Modem) Configure(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	if err := m.drv.Configure(cfg); err != nil {
		return err
	}
	m.cfg = cfg
	m.rxActive = false
	m.tx = false
	return nil
}

// Config returns the active configuration.
func (m *Modem) Config() Config { return m.cfg }

// CRCErrors returns the number of received packets dropped for CRC or
// header errors.
func (m *Modem) CRCErrors() uint32 { return m.crcErrors }

// SetEventCallback registers fn to be called on every radio
// interrupt, including the "soft" interrupt fired when a receive
// times out during a send. fn runs on the interrupt watcher goroutine
// and must not block.
func (m *Modem) SetEventCallback(fn func()) {
	m.irqMu.Lock()
	m.cb = fn
	m.irqMu.Unlock()
}

// IRQSignal returns a channel closed on the next radio interrupt.
func (m *Modem) IRQSignal() <-chan struct{} {
	m.irqMu.Lock()
	defer m.irqMu.Unlock()
	return m.irqCh
}

// radioISR records the interrupt time and wakes all waiters. Called
// from the driver's interrupt watcher, and directly for soft
// interrupts.
func (m *Modem) radioISR() {
	m.irqMu.Lock()
	m.lastIRQ = time.Now()
	ch := m.irqCh
	m.irqCh = make(chan struct{})
	cb := m.cb
	m.irqMu.Unlock()
	close(ch)
	if cb != nil {
		cb()
	}
}

// lastIRQTime returns the timestamp of the last interrupt, or now if
// none was recorded.
func (m *Modem) lastIRQTime() time.Time {
	m.irqMu.Lock()
	defer m.irqMu.Unlock()
	if m.lastIRQ.IsZero() {
		return time.Now()
	}
	return m.lastIRQ
}

func (m *Modem) clearLastIRQ() {
	m.irqMu.Lock()
	m.lastIRQ = time.Time{}
	m.irqMu.Unlock()
}

// irqTriggered reports whether an interrupt fired since the last
// clearLastIRQ.
func (m *Modem) irqTriggered() bool {
	m.irqMu.Lock()
	defer m.irqMu.Unlock()
	return !m.lastIRQ.IsZero()
}

// Standby aborts any receive or send in flight, puts the radio in
// standby and wakes anything blocked on the interrupt signal.
func (m *Modem) Standby() error {
	if err := m.drv.Standby(); err != nil {
		return err
	}
	m.rxActive = false
	m.tx = false
	m.clearLastIRQ()
	if m.AntennaSwitch != nil {
		m.AntennaSwitch.Idle()
	}
	m.radioISR() // soft interrupt
	return nil
}

// Sleep puts the radio into its lowest-power mode, aborting any
// operation in flight.
func (m *Modem) Sleep() error {
	if err := m.Standby(); err != nil {
		return err
	}
	return m.drv.Sleep()
}

// Close stops the driver's interrupt watchers. The radio is left in
// standby.
func (m *Modem) Close() error {
	if err := m.Standby(); err != nil {
		m.drv.Close()
		return err
	}
	return m.drv.Close()
}

// StartRecv begins receiving. timeout > 0 sets a deadline after which
// PollRecv reports the receive as over; timeout <= 0 receives until a
// packet arrives. continuous keeps the receiver running across
// received packets and cannot be combined with a timeout.
//
// If a send is in flight the radio is not touched yet; the receive
// starts when the send completes.
func (m *Modem) StartRecv(timeout time.Duration, continuous bool) error {
	if continuous && timeout > 0 {
		return &ConfigError{"timeout"} // mutually exclusive
	}
	m.rxActive = true
	m.rxContinuous = continuous
	m.rxLength = m.recvLength()
	if timeout > 0 {
		m.rxDeadline = time.Now().Add(timeout)
	} else {
		m.rxDeadline = time.Time{}
	}
	m.clearLastIRQ()
	if m.AntennaSwitch != nil && !m.tx {
		m.AntennaSwitch.Rx()
	}
	if m.tx {
		return nil
	}
	willIRQ, err := m.drv.StartRecv(timeout, m.rxLength)
	if err != nil {
		return err
	}
	m.willIRQ = willIRQ
	return nil
}

func (m *Modem) recvLength() uint8 {
	if !m.cfg.ImplicitHeader {
		return MaxPayloadLength
	}
	return m.cfg.RxLength
}

// PollRecv services an in-progress receive: it acknowledges receive
// interrupts, reads out a packet if one arrived, and resumes the
// receiver if it was paused by a send or a hardware timeout.
//
// receiving is true while the receive is still in progress (including
// while a send temporarily owns the radio).
func (m *Modem) PollRecv() (pkt *RxPacket, receiving bool, err error) {
	if !m.rxActive {
		return nil, false, nil
	}
	if m.tx {
		// The radio is sending; the receive resumes once the send
		// completes.
		return nil, true, nil
	}

	ev, err := m.drv.Events()
	if err != nil {
		return nil, false, err
	}
	if done := ev & (EventRxDone | EventRxTimeout); done != 0 {
		// Acknowledge only the completion flags; anything else may
		// belong to a packet the modem is receiving right now.
		if err := m.drv.ClearEvents(done | EventCRCError); err != nil {
			return nil, false, err
		}
		if ev&EventRxDone != 0 {
			valid := ev&EventCRCError == 0
			if !valid {
				m.crcErrors++
			}
			if valid || m.ReturnCRCError {
				if pkt, err = m.drv.ReadPacket(ev); err != nil {
					return nil, false, err
				}
				pkt.Received = m.lastIRQTime()
				if !m.rxContinuous {
					m.endRecv()
				}
			}
		}
	}

	receiving, err = m.checkRecv()
	return pkt, receiving, err
}

func (m *Modem) endRecv() {
	m.rxActive = false
	if m.AntennaSwitch != nil {
		m.AntennaSwitch.Idle()
	}
}

// checkRecv restarts the receiver if a send or a hardware receive
// window interrupted it, and applies the soft deadline. Reports
// whether the receive is still in progress.
func (m *Modem) checkRecv() (bool, error) {
	if !m.rxActive {
		return false, nil
	}
	idle, err := m.drv.Idle()
	if err != nil {
		return false, err
	}
	if !idle {
		// Radio is already receiving (or sending, in which case the
		// receive resumes later).
		return true, nil
	}

	timeout := time.Duration(0)
	if !m.rxDeadline.IsZero() {
		timeout = time.Until(m.rxDeadline)
		if timeout <= 0 {
			glog.V(2).Info("receive timed out in software")
			m.endRecv()
			m.radioISR() // soft interrupt to unblock waiters
			return false, nil
		}
	}

	glog.V(2).Infof("resuming receive timeout=%v continuous=%v", timeout, m.rxContinuous)
	willIRQ, err := m.drv.StartRecv(timeout, m.rxLength)
	if err != nil {
		return false, err
	}
	m.willIRQ = willIRQ
	if m.AntennaSwitch != nil {
		m.AntennaSwitch.Rx()
	}
	return true, nil
}

// PrepareSend loads a payload into the radio FIFO. The radio goes to
// standby; a paused receive resumes after the send.
func (m *Modem) PrepareSend(payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLong
	}
	return m.drv.PrepareSend(payload)
}

// StartSend transmits the payload loaded by PrepareSend.
func (m *Modem) StartSend() error {
	if m.AntennaSwitch != nil {
		m.AntennaSwitch.Tx()
	}
	m.clearLastIRQ()
	willIRQ, err := m.drv.StartSend()
	if err != nil {
		return err
	}
	m.willIRQ = willIRQ
	m.tx = true
	return nil
}

// PollSend services an in-progress send. sending is true while the
// transmission is still in flight. done is non-zero exactly once: on
// the first poll after the transmission completes, carrying the
// completion interrupt timestamp. A paused receive is resumed.
func (m *Modem) PollSend() (sending bool, done time.Time, err error) {
	if !m.tx {
		return false, time.Time{}, nil
	}
	ts := m.lastIRQTime()
	ev, err := m.drv.Events()
	if err != nil {
		return false, time.Time{}, err
	}
	if ev&EventTxDone == 0 {
		// If the caller mixes operations the modem may already be
		// back in standby with the flag never set; that is on the
		// caller.
		return true, time.Time{}, nil
	}
	if err := m.drv.ClearEvents(ev); err != nil {
		return false, time.Time{}, err
	}
	m.tx = false
	if m.AntennaSwitch != nil {
		m.AntennaSwitch.Idle()
	}
	if _, err := m.checkRecv(); err != nil {
		return false, time.Time{}, err
	}
	return false, ts, nil
}

// Send transmits payload and blocks until the transmission completes,
// returning its completion time.
func (m *Modem) Send(ctx context.Context, payload []byte) (time.Time, error) {
	return m.SendAt(ctx, payload, time.Time{})
}

// SendAt is Send with a requested transmission start time. The packet
// is loaded first so the send begins as close to at as possible.
func (m *Modem) SendAt(ctx context.Context, payload []byte, at time.Time) (time.Time, error) {
	if err := m.PrepareSend(payload); err != nil {
		return time.Time{}, err
	}
	if !at.IsZero() {
		if err := sleepCtx(ctx, time.Until(at)); err != nil {
			return time.Time{}, err
		}
	}
	if err := m.StartSend(); err != nil {
		return time.Time{}, err
	}

	// No point polling before the expected time on air has passed.
	if err := sleepCtx(ctx, m.TimeOnAir(len(payload))); err != nil {
		m.Standby()
		return time.Time{}, err
	}
	for {
		sending, done, err := m.PollSend()
		if err != nil || !sending {
			return done, err
		}
		if err := m.syncWait(ctx); err != nil {
			m.Standby()
			return time.Time{}, err
		}
	}
}

// Recv receives a single packet. timeout <= 0 blocks until a packet
// arrives; otherwise ErrRecvTimeout is returned when the deadline
// passes.
func (m *Modem) Recv(ctx context.Context, timeout time.Duration) (*RxPacket, error) {
	if err := m.StartRecv(timeout, false); err != nil {
		return nil, err
	}
	for {
		if err := m.syncWait(ctx); err != nil {
			m.Standby()
			return nil, err
		}
		pkt, receiving, err := m.PollRecv()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		if !receiving {
			return nil, ErrRecvTimeout
		}
	}
}

// syncWait blocks until a radio interrupt, a poll interval, or
// context cancellation. Without an interrupt line it degrades to
// short-interval polling.
func (m *Modem) syncWait(ctx context.Context) error {
	interval := time.Millisecond
	if m.willIRQ {
		// Poll occasionally anyway in case an edge was missed.
		interval = 50 * time.Millisecond
	}
	t := time.NewTimer(interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.IRQSignal():
	case <-t.C:
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
