package lora

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsyncSendWhileReceiving(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)
	am := NewAsyncModem(m)
	defer am.Close()

	ctx := context.Background()
	type recvResult struct {
		pkt *RxPacket
		err error
	}
	recvCh := make(chan recvResult, 1)
	go func() {
		pkt, err := am.Recv(ctx, 0)
		recvCh <- recvResult{pkt, err}
	}()

	// Let the receive start, then transmit over it.
	require.Eventually(t, func() bool { return drv.recvCount() == 1 },
		time.Second, time.Millisecond)
	go func() {
		time.Sleep(30 * time.Millisecond)
		drv.fire(EventTxDone, true)
	}()
	done, err := am.Send(ctx, []byte("ping"))
	require.NoError(t, err)
	require.False(t, done.IsZero())

	// The receive survived the send and resumes; a packet then
	// completes it.
	require.Eventually(t, func() bool { return drv.recvCount() == 2 },
		time.Second, time.Millisecond)
	drv.mu.Lock()
	drv.packet = &RxPacket{Payload: []byte("pong"), ValidCRC: true}
	drv.mu.Unlock()
	drv.fire(EventRxDone, true)

	select {
	case res := <-recvCh:
		require.NoError(t, res.err)
		require.Equal(t, []byte("pong"), res.pkt.Payload)
	case <-time.After(time.Second):
		t.Fatal("receive did not complete")
	}
}

func TestAsyncRecvTimeout(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)
	am := NewAsyncModem(m)
	defer am.Close()

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

	_, err = am.Recv(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrRecvTimeout)
}

func TestAsyncStandbyUnblocksRecv(t *testing.T) {
	drv := newFakeDriver()
	m, err := NewModem(drv, testConfig())
	require.NoError(t, err)
	am := NewAsyncModem(m)

	errCh := make(chan error, 1)
	go func() {
		_, err := am.Recv(context.Background(), 0)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return drv.recvCount() == 1 },
		time.Second, time.Millisecond)
	require.NoError(t, am.Standby())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrRecvTimeout)
	case <-time.After(time.Second):
		t.Fatal("standby did not unblock the receive")
	}
}
