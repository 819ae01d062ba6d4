package sx127x

// SX1276/77/78/79 register map (datasheet table 41, LoRa mode).
const (
	regFifo              = 0x00
	regOpMode            = 0x01
	regFrfMsb            = 0x06
	regFrfMid            = 0x07
	regFrfLsb            = 0x08
	regPaConfig          = 0x09
	regPaRamp            = 0x0a
	regOcp               = 0x0b
	regLna               = 0x0c
	regFifoAddrPtr       = 0x0d
	regFifoTxBaseAddr    = 0x0e
	regFifoRxBaseAddr    = 0x0f
	regFifoRxCurrentAddr = 0x10
	regIrqFlagsMask      = 0x11
	regIrqFlags          = 0x12
	regRxNbBytes         = 0x13
	regPktSnrValue       = 0x19
	regPktRssiValue      = 0x1a
	regModemConfig1      = 0x1d
	regModemConfig2      = 0x1e
	regSymbTimeoutLsb    = 0x1f
	regPreambleMsb       = 0x20
	regPreambleLsb       = 0x21
	regPayloadLength     = 0x22
	regModemConfig3      = 0x26
	regDetectionOptimize = 0x31
	regInvertIQ          = 0x33
	regDetectionThresh   = 0x37
	regSyncWord          = 0x39
	regInvertIQ2         = 0x3b
	regDioMapping1       = 0x40
	regVersion           = 0x42
	regPaDac             = 0x4d
)

// RegOpMode fields.
const (
	opModeLongRange = 0x80
	opModeMask      = 0x07

	opModeSleep        = 0x00
	opModeStandby      = 0x01
	opModeTx           = 0x03
	opModeRxContinuous = 0x05
	opModeRxSingle     = 0x06
)

// RegIrqFlags bits.
const (
	irqRxTimeout       = 0x80
	irqRxDone          = 0x40
	irqPayloadCrcError = 0x20
	irqValidHeader     = 0x10
	irqTxDone          = 0x08
)

// RegDioMapping1: DIO0 function in bits 7:6.
const (
	dio0RxDone = 0x00
	dio0TxDone = 0x40
)

// RegPaConfig.
const paBoost = 0x80

// RegInvertIQ / RegInvertIQ2.
const (
	invertIQRx   = 0x40
	invertIQTx   = 0x01
	invertIQ2On  = 0x19
	invertIQ2Off = 0x1d
)

// chipVersion is the RegVersion value of production silicon.
const chipVersion = 0x12

// rfMidBand splits the low and high frequency ports, which have
// different packet RSSI offsets.
const (
	rfMidBand    = 525000000
	rssiOffsetHF = -157
	rssiOffsetLF = -164
)

// bandwidthIndex maps a bandwidth in Hz to the RegModemConfig1 Bw
// field value.
var bandwidthIndex = map[uint32]byte{
	7800:   0,
	10400:  1,
	15600:  2,
	20800:  3,
	31250:  4,
	41700:  5,
	62500:  6,
	125000: 7,
	250000: 8,
	500000: 9,
}

// paRampUs lists the supported PA ramp times; the register value is
// the index.
var paRampUs = []uint16{
	3400, 2000, 1000, 500, 250, 125, 100, 62, 50, 40, 31, 25, 20, 15, 12, 10,
}
