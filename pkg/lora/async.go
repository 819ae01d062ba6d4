package lora

import (
	"context"
	"sync"
	"time"
)

// AsyncModem adapts a Modem for concurrent use by one sending and one
// receiving goroutine. Hardware access is serialized; waiting happens
// on the modem's interrupt signal, so a send can be triggered while a
// receive is blocked and vice versa. The underlying state machine
// pauses the receive for the duration of the send and then resumes
// it.
type AsyncModem struct {
	mu sync.Mutex
	m  *Modem
}

// NewAsyncModem wraps m. The Modem must not be used directly while
// the AsyncModem is in use.
func NewAsyncModem(m *Modem) *AsyncModem {
	return &AsyncModem{m: m}
}

// Modem returns the wrapped Modem for configuration access.
func (a *AsyncModem) Modem() *Modem { return a.m }

// Send transmits payload and returns the completion time.
func (a *AsyncModem) Send(ctx context.Context, payload []byte) (time.Time, error) {
	a.mu.Lock()
	err := a.m.PrepareSend(payload)
	if err == nil {
		err = a.m.StartSend()
	}
	airtime := a.m.TimeOnAir(len(payload))
	a.mu.Unlock()
	if err != nil {
		return time.Time{}, err
	}

	if err := sleepCtx(ctx, airtime); err != nil {
		a.standby()
		return time.Time{}, err
	}
	for {
		sig := a.m.IRQSignal()
		a.mu.Lock()
		sending, done, err := a.m.PollSend()
		a.mu.Unlock()
		if err != nil || !sending {
			return done, err
		}
		if err := waitSignal(ctx, sig); err != nil {
			a.standby()
			return time.Time{}, err
		}
	}
}

// Recv receives a single packet. timeout <= 0 blocks until a packet
// arrives; otherwise ErrRecvTimeout is returned when the deadline
// passes, even if a concurrent send delayed the receiver.
func (a *AsyncModem) Recv(ctx context.Context, timeout time.Duration) (*RxPacket, error) {
	a.mu.Lock()
	err := a.m.StartRecv(timeout, false)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for {
		sig := a.m.IRQSignal()
		a.mu.Lock()
		pkt, receiving, err := a.m.PollRecv()
		a.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		if !receiving {
			return nil, ErrRecvTimeout
		}
		if err := waitSignal(ctx, sig); err != nil {
			a.standby()
			return nil, err
		}
	}
}

// Standby cancels any operation in flight on either goroutine.
func (a *AsyncModem) Standby() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.m.Standby()
}

// Close stops the modem.
func (a *AsyncModem) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.m.Close()
}

func (a *AsyncModem) standby() {
	a.mu.Lock()
	a.m.Standby()
	a.mu.Unlock()
}

// waitSignal waits for a radio interrupt with a polling fallback, the
// same discipline as Modem.syncWait but against a signal channel
// captured before the last poll, so an interrupt arriving in between
// is not lost.
func waitSignal(ctx context.Context, sig <-chan struct{}) error {
	t := time.NewTimer(50 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sig:
	case <-t.C:
	}
	return nil
}
