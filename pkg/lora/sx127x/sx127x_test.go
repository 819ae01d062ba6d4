package sx127x

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiotalks/lora.go/pkg/hal/haltest"
	"github.com/radiotalks/lora.go/pkg/lora"
)

func newTestRadio(t *testing.T) (*Radio, *haltest.RegisterBus) {
	bus := haltest.NewRegisterBus()
	bus.Set(regVersion, chipVersion)
	r, err := New(bus, Pins{})
	require.NoError(t, err)
	return r, bus
}

func testConfig() lora.Config {
	return lora.Config{
		Frequency:       916000000,
		SpreadingFactor: 8,
		Bandwidth:       500000,
		CodingRate:      8,
		PreambleLength:  12,
	}
}

func TestNewVersionCheck(t *testing.T) {
	bus := haltest.NewRegisterBus()
	bus.Set(regVersion, 0x22)
	_, err := New(bus, Pins{})
	require.Error(t, err)
}

func TestNewReset(t *testing.T) {
	bus := haltest.NewRegisterBus()
	bus.Set(regVersion, chipVersion)
	reset := &haltest.Pin{}
	reset.Set(true)
	_, err := New(bus, Pins{Reset: reset})
	require.NoError(t, err)
	high, err := reset.Get()
	require.NoError(t, err)
	require.True(t, high) // left out of reset
}

func TestConfigureRegisters(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	// 916 MHz: frf = 916e6 * 2^19 / 32e6.
	require.EqualValues(t, 0xe5, bus.Reg(regFrfMsb))
	require.EqualValues(t, 0x00, bus.Reg(regFrfMid))
	require.EqualValues(t, 0x00, bus.Reg(regFrfLsb))

	require.EqualValues(t, 0x98, bus.Reg(regModemConfig1)) // BW500, CR 4/8
	require.EqualValues(t, 0x84, bus.Reg(regModemConfig2)) // SF8, CRC on
	require.EqualValues(t, 0x04, bus.Reg(regModemConfig3)) // AGC, no LDR
	require.EqualValues(t, 0x00, bus.Reg(regPreambleMsb))
	require.EqualValues(t, 12, bus.Reg(regPreambleLsb))
	require.EqualValues(t, 0x23, bus.Reg(regLna))
	require.EqualValues(t, paBoost|0x00, bus.Reg(regPaConfig)) // 0 dBm clamps to 2
	require.EqualValues(t, opModeLongRange|opModeStandby, bus.Reg(regOpMode))
}

func TestConfigureLowDataRate(t *testing.T) {
	r, bus := newTestRadio(t)
	cfg := testConfig()
	cfg.SpreadingFactor = 12
	cfg.Bandwidth = 125000
	cfg.CodingRate = 5
	require.NoError(t, r.Configure(cfg))
	require.EqualValues(t, 0x0c, bus.Reg(regModemConfig3)) // AGC + LDR
}

func TestConfigureOptions(t *testing.T) {
	r, bus := newTestRadio(t)
	cfg := testConfig()
	cfg.SyncWord = 0x12
	cfg.PARampUs = 50
	cfg.TxPower = 17
	require.NoError(t, r.Configure(cfg))
	require.EqualValues(t, 0x12, bus.Reg(regSyncWord))
	require.EqualValues(t, 8, bus.Reg(regPaRamp)) // 50us ramp
	require.EqualValues(t, paBoost|15, bus.Reg(regPaConfig))

	cfg.PARampUs = 5000 // beyond the longest supported ramp
	err := r.Configure(cfg)
	var cfgErr *lora.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "PARampUs", cfgErr.Field)
}

func TestConfigureSpreadingFactorLimits(t *testing.T) {
	r, _ := newTestRadio(t)

	cfg := testConfig()
	cfg.SpreadingFactor = 5 // SX126x only
	var cfgErr *lora.ConfigError
	require.ErrorAs(t, r.Configure(cfg), &cfgErr)

	cfg.SpreadingFactor = 6 // requires implicit header on this chip
	require.ErrorAs(t, r.Configure(cfg), &cfgErr)
	require.Equal(t, "ImplicitHeader", cfgErr.Field)

	cfg.ImplicitHeader = true
	cfg.RxLength = 16
	require.NoError(t, r.Configure(cfg))
}

func TestStartRecvSingleWithTimeout(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	willIRQ, err := r.StartRecv(100*time.Millisecond, lora.MaxPayloadLength)
	require.NoError(t, err)
	require.False(t, willIRQ) // no DIO0 wired

	// 100ms at 512us/symbol = 195 symbols.
	require.EqualValues(t, 195, bus.Reg(regSymbTimeoutLsb))
	require.EqualValues(t, 0x84, bus.Reg(regModemConfig2)) // timeout MSBs zero
	require.EqualValues(t, opModeLongRange|opModeRxSingle, bus.Reg(regOpMode))
	require.EqualValues(t, dio0RxDone, bus.Reg(regDioMapping1))
}

func TestStartRecvContinuous(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	_, err := r.StartRecv(0, lora.MaxPayloadLength)
	require.NoError(t, err)
	require.EqualValues(t, opModeLongRange|opModeRxContinuous, bus.Reg(regOpMode))
}

func TestSend(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, r.PrepareSend(payload))
	require.EqualValues(t, len(payload), bus.Reg(regPayloadLength))
	require.EqualValues(t, dio0TxDone, bus.Reg(regDioMapping1))
	require.Equal(t, payload, bus.Fifo)

	willIRQ, err := r.StartSend()
	require.NoError(t, err)
	require.False(t, willIRQ)
	require.EqualValues(t, opModeLongRange|opModeTx, bus.Reg(regOpMode))
}

func TestEvents(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	bus.Set(regIrqFlags, irqRxDone|irqPayloadCrcError)
	ev, err := r.Events()
	require.NoError(t, err)
	require.Equal(t, lora.EventRxDone|lora.EventCRCError, ev)

	// Clearing writes ones for exactly the requested flags.
	require.NoError(t, r.ClearEvents(lora.EventRxDone))
	require.EqualValues(t, irqRxDone, bus.Reg(regIrqFlags))

	bus.Set(regIrqFlags, irqTxDone|irqRxTimeout)
	ev, err = r.Events()
	require.NoError(t, err)
	require.Equal(t, lora.EventTxDone|lora.EventRxTimeout, ev)
}

func TestReadPacket(t *testing.T) {
	r, bus := newTestRadio(t)
	require.NoError(t, r.Configure(testConfig()))

	bus.Set(regRxNbBytes, 5)
	bus.Set(regFifoRxCurrentAddr, 0x00)
	bus.Set(regPktSnrValue, 40)  // 10 dB
	bus.Set(regPktRssiValue, 60) // -157 + 60 on the HF port
	bus.Fifo = []byte("hello")

	pkt, err := r.ReadPacket(lora.EventRxDone)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pkt.Payload)
	require.InDelta(t, 10.0, pkt.SNR, 0.01)
	require.EqualValues(t, -97, pkt.RSSI)
	require.True(t, pkt.ValidCRC)

	bus.Set(regRxNbBytes, 1)
	bus.Fifo = []byte{0xff}
	pkt, err = r.ReadPacket(lora.EventRxDone | lora.EventCRCError)
	require.NoError(t, err)
	require.False(t, pkt.ValidCRC)
}

func TestInterruptLine(t *testing.T) {
	bus := haltest.NewRegisterBus()
	bus.Set(regVersion, chipVersion)
	dio0 := &haltest.Pin{}
	r, err := New(bus, Pins{DIO0: dio0})
	require.NoError(t, err)
	require.NoError(t, r.Configure(testConfig()))

	fired := make(chan struct{}, 1)
	r.OnEvent(func() { fired <- struct{}{} })

	willIRQ, err := r.StartRecv(0, lora.MaxPayloadLength)
	require.NoError(t, err)
	require.True(t, willIRQ)

	dio0.Trigger()
	require.Len(t, fired, 1)

	require.NoError(t, r.Close())
	dio0.Trigger()
	require.Len(t, fired, 1) // watcher stopped
}
