package sx126x

// SX1261/2 command opcodes (datasheet chapter 13).
const (
	cmdSetSleep             = 0x84
	cmdSetStandby           = 0x80
	cmdSetTx                = 0x83
	cmdSetRx                = 0x82
	cmdSetPacketType        = 0x8a
	cmdSetRfFrequency       = 0x86
	cmdSetPaConfig          = 0x95
	cmdSetTxParams          = 0x8e
	cmdSetBufferBaseAddress = 0x8f
	cmdWriteBuffer          = 0x0e
	cmdReadBuffer           = 0x1e
	cmdSetModulationParams  = 0x8b
	cmdSetPacketParams      = 0x8c
	cmdSetDioIrqParams      = 0x08
	cmdGetIrqStatus         = 0x12
	cmdClearIrqStatus       = 0x02
	cmdGetRxBufferStatus    = 0x13
	cmdGetPacketStatus      = 0x14
	cmdGetStatus            = 0xc0
	cmdWriteRegister        = 0x0d
	cmdReadRegister         = 0x1d
	cmdSetDIO2AsRfSwitch    = 0x9d
	cmdCalibrate            = 0x89
)

// Packet types.
const packetTypeLoRa = 0x01

// Standby configurations.
const standbyRC = 0x00

// IRQ status bits.
const (
	irqTxDone    = 0x0001
	irqRxDone    = 0x0002
	irqHeaderErr = 0x0020
	irqCrcErr    = 0x0040
	irqTimeout   = 0x0200
)

// GetStatus chip modes (bits 6:4).
const (
	chipModeStbyRC   = 0x2
	chipModeStbyXOSC = 0x3
)

// SetRx timeout field: 15.625us per tick, 0xffffff = continuous.
const (
	rxTickNs     = 15625
	rxContinuous = 0xffffff
	rxTimeoutMax = 0xfffffe
)

// LoRa sync word register and standard values.
const (
	regLoRaSyncWordMsb = 0x0740
	syncWordPrivate    = 0x1424
)

// Modulation bandwidth codes.
var bandwidthCode = map[uint32]byte{
	7800:   0x00,
	10400:  0x08,
	15600:  0x01,
	20800:  0x09,
	31250:  0x02,
	41700:  0x0a,
	62500:  0x03,
	125000: 0x04,
	250000: 0x05,
	500000: 0x06,
}

// PA ramp times; the SetTxParams value is the index.
var paRampUs = []uint16{10, 20, 40, 80, 200, 800, 1700, 3400}
