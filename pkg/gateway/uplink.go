package gateway

import (
	"encoding/json"
	"time"

	"github.com/radiotalks/lora.go/pkg/lora"
)

// Uplink is the JSON message published for every received packet.
// The field set follows the conventions of single-channel packet
// forwarders; Data is base64 encoded by encoding/json.
type Uplink struct {
	// Time is the receive completion time, host clock.
	Time time.Time `json:"time"`
	// Freq is the RX center frequency in MHz.
	Freq float64 `json:"freq"`
	// Datr is the datarate identifier, e.g. "SF8BW500".
	Datr string `json:"datr"`
	// Codr is the coding rate identifier, e.g. "4/8".
	Codr string `json:"codr"`
	// Rssi is the packet RSSI in dBm.
	Rssi int `json:"rssi"`
	// Lsnr is the packet SNR in dB.
	Lsnr float64 `json:"lsnr"`
	// Stat is the CRC status: 1 = OK, -1 = fail.
	Stat int `json:"stat"`
	// Size is the payload size in bytes.
	Size int `json:"size"`
	// Data is the packet payload.
	Data []byte `json:"data"`
	// GwID identifies the reporting gateway.
	GwID string `json:"gwid"`
}

// NewUplink builds an Uplink from a received packet.
func NewUplink(gwID string, cfg lora.Config, pkt *lora.RxPacket) *Uplink {
	stat := 1
	if !pkt.ValidCRC {
		stat = -1
	}
	return &Uplink{
		Time: pkt.Received.UTC(),
		Freq: float64(cfg.Frequency) / 1e6,
		Datr: cfg.DataRate(),
		Codr: cfg.CodingRateID(),
		Rssi: int(pkt.RSSI),
		Lsnr: float64(pkt.SNR),
		Stat: stat,
		Size: len(pkt.Payload),
		Data: pkt.Payload,
		GwID: gwID,
	}
}

// Marshal encodes the uplink as JSON.
func (u *Uplink) Marshal() ([]byte, error) { return json.Marshal(u) }

// Downlink is the JSON message accepted on the downlink topic.
type Downlink struct {
	// Data is the payload to transmit.
	Data []byte `json:"data"`
	// At optionally schedules the transmission start time; zero
	// transmits immediately.
	At time.Time `json:"at,omitempty"`
}

// ParseDownlink decodes a downlink request.
func ParseDownlink(payload []byte) (*Downlink, error) {
	var d Downlink
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
