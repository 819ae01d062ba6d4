package lora

import (
	"fmt"
	"time"
)

// RxPacket is a packet received from the modem together with its
// radio metadata.
type RxPacket struct {
	// Payload is the raw packet payload.
	Payload []byte

	// Received is the timestamp of the receive interrupt.
	Received time.Time

	// SNR is the packet signal to noise ratio in dB.
	SNR float32

	// RSSI is the packet signal strength in dBm.
	RSSI int16

	// ValidCRC is false if the payload CRC check failed. Packets with
	// invalid CRC are only delivered when Modem.ReturnCRCError is set.
	ValidCRC bool
}

// String implements fmt.Stringer.
func (p *RxPacket) String() string {
	return fmt.Sprintf("RxPacket(%q, snr=%.2f, rssi=%d, crc=%v)",
		p.Payload, p.SNR, p.RSSI, p.ValidCRC)
}
