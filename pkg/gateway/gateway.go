// Package gateway implements a single-channel LoRa packet forwarder:
// received packets are published to an MQTT broker, and downlink
// requests from the broker are transmitted.
package gateway

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/radiotalks/lora.go/pkg/gateway/mqtt"
	"github.com/radiotalks/lora.go/pkg/lora"
)

// Topic suffixes under "<prefix><gateway-id>/".
const (
	TopicUp   = "/up"
	TopicDown = "/down"
)

// Gateway forwards packets between a modem and an MQTT broker.
type Gateway struct {
	ID    string
	Modem *lora.AsyncModem
	Queue *mqtt.Queue

	downCh chan *Downlink
}

// New creates a Gateway over an already-configured modem and queue.
func New(id string, modem *lora.AsyncModem, queue *mqtt.Queue) *Gateway {
	return &Gateway{
		ID:     id,
		Modem:  modem,
		Queue:  queue,
		downCh: make(chan *Downlink, 16),
	}
}

// Run implements run.Runnable. It connects the queue, subscribes for
// downlinks and forwards in both directions until the context is
// cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Queue.Connect(); err != nil {
		return err
	}
	defer g.Queue.Close()

	if err := g.Queue.Sub(g.ID+TopicDown, g.handleDown); err != nil {
		return err
	}
	glog.Infof("gateway %s forwarding %s", g.ID, g.Modem.Modem().Config().DataRate())

	errCh := make(chan error, 2)
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { errCh <- g.sendLoop(sendCtx) }()
	go func() { errCh <- g.recvLoop(sendCtx) }()

	select {
	case <-ctx.Done():
		g.Modem.Standby()
		cancel()
		<-errCh
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		cancel()
		g.Modem.Standby()
		<-errCh
		return err
	}
}

// handleDown runs on the MQTT client goroutine; it only queues.
func (g *Gateway) handleDown(topic string, payload []byte) {
	down, err := ParseDownlink(payload)
	if err != nil {
		glog.Warningf("bad downlink on %s: %v", topic, err)
		return
	}
	select {
	case g.downCh <- down:
	default:
		glog.Warning("downlink queue full, dropping")
	}
}

func (g *Gateway) recvLoop(ctx context.Context) error {
	for {
		pkt, err := g.Modem.Recv(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		up := NewUplink(g.ID, g.Modem.Modem().Config(), pkt)
		data, err := up.Marshal()
		if err != nil {
			return err
		}
		glog.V(1).Infof("uplink %d bytes rssi=%d snr=%.2f", up.Size, up.Rssi, up.Lsnr)
		if err := g.Queue.Pub(g.ID+TopicUp, data); err != nil {
			glog.Warningf("publish uplink: %v", err)
		}
	}
}

func (g *Gateway) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case down := <-g.downCh:
			var done time.Time
			var err error
			if down.At.IsZero() {
				done, err = g.Modem.Send(ctx, down.Data)
			} else {
				done, err = g.sendAt(ctx, down)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glog.Warningf("downlink send: %v", err)
				continue
			}
			glog.V(1).Infof("downlink %d bytes sent at %v", len(down.Data), done)
		}
	}
}

func (g *Gateway) sendAt(ctx context.Context, down *Downlink) (time.Time, error) {
	wait := time.Until(down.At)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-t.C:
		}
	}
	return g.Modem.Send(ctx, down.Data)
}
