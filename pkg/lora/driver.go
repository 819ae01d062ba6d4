package lora

import "time"

// Events is a chip-independent bitmask of radio interrupt causes.
// Drivers translate the chip IRQ flags into Events.
type Events uint16

const (
	// EventRxDone indicates a packet has been received.
	EventRxDone Events = 1 << iota
	// EventTxDone indicates a transmission has completed.
	EventTxDone
	// EventCRCError indicates the received payload failed CRC.
	EventCRCError
	// EventRxTimeout indicates a hardware receive window expired
	// without a packet.
	EventRxTimeout
)

// Driver is the chip-specific part of a modem. Implementations
// program one radio family (see packages sx127x and sx126x); Modem
// provides the shared logic on top.
//
// Drivers are not safe for concurrent use; Modem serializes access.
type Driver interface {
	// Configure applies cfg to the radio. Called with the radio in
	// standby or sleep; leaves it in standby.
	Configure(cfg Config) error

	// Standby aborts any operation and puts the radio in standby.
	Standby() error

	// Sleep puts the radio into its lowest-power mode. Configuration
	// must survive, or be restored on the next operation.
	Sleep() error

	// Idle reports whether the radio is in standby or sleep,
	// i.e. neither transmitting nor receiving.
	Idle() (bool, error)

	// StartRecv puts the radio into receive mode. A timeout <= 0
	// requests an open-ended receive; otherwise the driver may arm a
	// hardware timeout up to its maximum (the caller re-arms as
	// needed until the soft deadline). length is the expected payload
	// length for implicit header mode. Returns whether a hardware
	// interrupt will signal completion.
	StartRecv(timeout time.Duration, length uint8) (willIRQ bool, err error)

	// PrepareSend loads payload into the radio FIFO, leaving the
	// radio in standby ready for StartSend.
	PrepareSend(payload []byte) error

	// StartSend begins transmitting the prepared payload. Returns
	// whether a hardware interrupt will signal completion.
	StartSend() (willIRQ bool, err error)

	// Events reads the pending interrupt flags.
	Events() (Events, error)

	// ClearEvents acknowledges the given interrupt flags.
	ClearEvents(ev Events) error

	// ReadPacket reads the received payload and its metadata.
	// ev carries the receive completion flags.
	ReadPacket(ev Events) (*RxPacket, error)

	// SymbolOffsets returns the symbol count and payload bit offsets
	// used in the time-on-air calculation. Non-zero only for SX126x
	// at SF5/SF6.
	SymbolOffsets() (symbols, bits int)

	// OnEvent registers fn to be called from the interrupt line
	// watcher. fn must not block.
	OnEvent(fn func())

	// Close releases interrupt watchers. It does not close the SPI
	// bus, which is owned by the caller.
	Close() error
}

// AntennaSwitch controls an external RF switch around radio
// operations. All methods are optional no-ops for boards without one.
type AntennaSwitch interface {
	Tx()
	Rx()
	Idle()
}
