package lora

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory Driver for modem state machine tests.
type fakeDriver struct {
	mu      sync.Mutex
	cfg     Config
	events  Events
	idle    bool
	packet  *RxPacket
	onEvent func()

	symOff, bitOff int

	recvTimeouts []time.Duration
	sendCount    int
	prepared     []byte
	standbyCount int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{idle: true}
}

func (d *fakeDriver) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.idle = true
	return nil
}

func (d *fakeDriver) Standby() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idle = true
	d.events = 0
	d.standbyCount++
	return nil
}

func (d *fakeDriver) Sleep() error { return d.Standby() }

func (d *fakeDriver) Idle() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle, nil
}

func (d *fakeDriver) StartRecv(timeout time.Duration, length uint8) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recvTimeouts = append(d.recvTimeouts, timeout)
	d.idle = false
	return false, nil
}

func (d *fakeDriver) PrepareSend(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepared = append([]byte(nil), payload...)
	return nil
}

func (d *fakeDriver) StartSend() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendCount++
	d.idle = false
	return false, nil
}

func (d *fakeDriver) Events() (Events, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events, nil
}

func (d *fakeDriver) ClearEvents(ev Events) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events &^= ev
	return nil
}

func (d *fakeDriver) ReadPacket(ev Events) (*RxPacket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pkt := *d.packet
	return &pkt, nil
}

func (d *fakeDriver) SymbolOffsets() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.symOff, d.bitOff
}

func (d *fakeDriver) OnEvent(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onEvent = fn
}

func (d *fakeDriver) Close() error { return nil }

// fire simulates a radio interrupt: the flags latch and the chip drops
// back to standby as after a single receive or a completed send.
func (d *fakeDriver) fire(ev Events, idle bool) {
	d.mu.Lock()
	d.events |= ev
	d.idle = idle
	fn := d.onEvent
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *fakeDriver) recvCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recvTimeouts)
}

func testConfig() Config {
	return Config{
		Frequency:       916000000,
		SpreadingFactor: 8,
		Bandwidth:       500000,
		CodingRate:      8,
	}
}

func TestModemRecvPacket(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(0, false))
	require.Equal(t, 1, drv.recvCount())

	pkt, receiving, err := m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.True(t, receiving)

	drv.mu.Lock()
	drv.packet = &RxPacket{Payload: []byte("hello"), RSSI: -80, SNR: 7.25, ValidCRC: true}
	drv.mu.Unlock()
	before := time.Now()
	drv.fire(EventRxDone, true)

	pkt, receiving, err = m.PollRecv()
	require.NoError(t, err)
	require.False(t, receiving)
	require.NotNil(t, pkt)
	require.Equal(t, []byte("hello"), pkt.Payload)
	require.True(t, pkt.ValidCRC)
	require.False(t, pkt.Received.Before(before))
	require.EqualValues(t, 0, m.CRCErrors())
}

func TestModemRecvContinuous(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(0, true))
	for i := 0; i < 3; i++ {
		drv.mu.Lock()
		drv.packet = &RxPacket{Payload: []byte{byte(i)}, ValidCRC: true}
		drv.mu.Unlock()
		drv.fire(EventRxDone, false) // chip stays in RX

		pkt, receiving, err := m.PollRecv()
		require.NoError(t, err)
		require.True(t, receiving)
		require.NotNil(t, pkt)
		require.Equal(t, []byte{byte(i)}, pkt.Payload)
	}
	// Still the single initial receive window.
	require.Equal(t, 1, drv.recvCount())
}

func TestModemRecvCRCError(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(0, false))
	drv.mu.Lock()
	drv.packet = &RxPacket{Payload: []byte{1, 2, 3}, ValidCRC: false}
	drv.mu.Unlock()
	drv.fire(EventRxDone|EventCRCError, true)

	// Dropped by default; the receive restarts.
	pkt, receiving, err := m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.True(t, receiving)
	require.EqualValues(t, 1, m.CRCErrors())
	require.Equal(t, 2, drv.recvCount())

	// Opting in delivers the bad packet and ends the receive.
	m.ReturnCRCError = true
	drv.fire(EventRxDone|EventCRCError, true)
	pkt, receiving, err = m.PollRecv()
	require.NoError(t, err)
	require.False(t, receiving)
	require.NotNil(t, pkt)
	require.False(t, pkt.ValidCRC)
	require.EqualValues(t, 2, m.CRCErrors())
}

func TestModemRecvSoftTimeout(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(40*time.Millisecond, false))
	require.Equal(t, 1, drv.recvCount())

	// A hardware receive window expires before the soft deadline: the
	// receive is re-armed with the remaining time.
	drv.fire(EventRxTimeout, true)
	pkt, receiving, err := m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.True(t, receiving)
	require.Equal(t, 2, drv.recvCount())
	drv.mu.Lock()
	rearm := drv.recvTimeouts[1]
	drv.mu.Unlock()
	require.Greater(t, rearm, time.Duration(0))
	require.LessOrEqual(t, rearm, 40*time.Millisecond)

	// Past the deadline the receive ends and waiters are woken.
	sig := m.IRQSignal()
	time.Sleep(50 * time.Millisecond)
	drv.fire(EventRxTimeout, true)
	pkt, receiving, err = m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.False(t, receiving)
	select {
	case <-sig:
	default:
		t.Fatal("soft timeout did not signal waiters")
	}
}

func TestModemSendPausesRecv(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(500*time.Millisecond, false))
	require.Equal(t, 1, drv.recvCount())

	require.NoError(t, m.PrepareSend([]byte("ping")))
	require.NoError(t, m.StartSend())

	// While sending the receive is paused, not cancelled.
	pkt, receiving, err := m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.True(t, receiving)
	require.Equal(t, 1, drv.recvCount())

	drv.fire(EventTxDone, true)
	sending, done, err := m.PollSend()
	require.NoError(t, err)
	require.False(t, sending)
	require.False(t, done.IsZero())

	// The receive resumed with its remaining deadline.
	require.Equal(t, 2, drv.recvCount())
	drv.mu.Lock()
	resumed := drv.recvTimeouts[1]
	drv.mu.Unlock()
	require.Greater(t, resumed, time.Duration(0))
	require.LessOrEqual(t, resumed, 500*time.Millisecond)

	// The completion timestamp is reported exactly once.
	sending, done, err = m.PollSend()
	require.NoError(t, err)
	require.False(t, sending)
	require.True(t, done.IsZero())
}

func TestModemStartRecvContinuousWithTimeout(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	err = m.StartRecv(time.Second, true)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestModemStandbyAbortsRecv(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRecv(0, false))
	sig := m.IRQSignal()
	require.NoError(t, m.Standby())

	pkt, receiving, err := m.PollRecv()
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.False(t, receiving)
	select {
	case <-sig:
	default:
		t.Fatal("standby did not signal waiters")
	}
}

func TestModemSendBlocking(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		drv.fire(EventTxDone, true)
	}()
	done, err := m.Send(context.Background(), []byte("ping"))
	require.NoError(t, err)
	require.False(t, done.IsZero())
	drv.mu.Lock()
	prepared := drv.prepared
	drv.mu.Unlock()
	require.Equal(t, []byte("ping"), prepared)
}

func TestModemSendTooLong(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	_, err = m.Send(context.Background(), make([]byte, MaxPayloadLength+1))
	require.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestModemRecvBlockingTimeout(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	// Expire a hardware receive window every few milliseconds; the
	// modem re-arms until its own deadline passes.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				drv.fire(EventRxTimeout, true)
			}
		}
	}()

	start := time.Now()
	_, err = m.Recv(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrRecvTimeout)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestModemRecvContextCancel(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = m.Recv(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestModemEventCallback(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)

	calls := make(chan struct{}, 2)
	m.SetEventCallback(func() { calls <- struct{}{} })
	drv.fire(EventRxDone, true)
	require.Len(t, calls, 1)
	require.NoError(t, m.Standby()) // soft interrupt
	require.Len(t, calls, 2)
}

func TestModemConfigureValidates(t *testing.T) {
	drv := newFakeDriver()
	_, err := NewModem(drv, Config{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "Frequency", cfgErr.Field)
}
