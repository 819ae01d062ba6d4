// Package sh provides the ishell backed interactive radio console.
package sh

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/radiotalks/lora.go/pkg/lora"
)

// Shell wraps an interactive session over one modem.
type Shell struct {
	Shell *ishell.Shell
	Modem *lora.Modem

	recvTimeout time.Duration
}

// New creates the shell with all commands registered.
func New(modem *lora.Modem) *Shell {
	s := &Shell{
		Shell:       ishell.New(),
		Modem:       modem,
		recvTimeout: 5 * time.Second,
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", modem.Config().DataRate()))
	for _, cmd := range s.commands() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// Run starts the interactive loop and blocks until exit.
func (s *Shell) Run() {
	s.Shell.Println("LoRa radio console. Type 'help' for commands.")
	s.Shell.Run()
}

func (s *Shell) commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "info",
			Help: "show the active radio configuration",
			Func: s.cmdInfo,
		},
		{
			Name: "set",
			Help: "set freq|sf|bw|cr|preamble|power <value> and reconfigure",
			Func: s.cmdSet,
		},
		{
			Name: "send",
			Help: "send <text>: transmit a text payload",
			Func: s.cmdSend,
		},
		{
			Name: "sendhex",
			Help: "sendhex <hex>: transmit a hex encoded payload",
			Func: s.cmdSendHex,
		},
		{
			Name: "recv",
			Help: "recv [timeout-ms]: receive one packet",
			Func: s.cmdRecv,
		},
		{
			Name: "stats",
			Help: "show receive statistics",
			Func: s.cmdStats,
		},
		{
			Name: "standby",
			Help: "abort any operation and go to standby",
			Func: func(c *ishell.Context) { s.report(c, s.Modem.Standby()) },
		},
		{
			Name: "sleep",
			Help: "put the radio to sleep",
			Func: func(c *ishell.Context) { s.report(c, s.Modem.Sleep()) },
		},
	}
}

func (s *Shell) cmdInfo(c *ishell.Context) {
	cfg := s.Modem.Config()
	c.Printf("freq      %d Hz\n", cfg.Frequency)
	c.Printf("datarate  %s (cr %s)\n", cfg.DataRate(), cfg.CodingRateID())
	c.Printf("preamble  %d symbols\n", cfg.PreambleLength)
	c.Printf("power     %d dBm\n", cfg.TxPower)
	c.Printf("crc       %v\n", !cfg.DisableCRC)
	c.Printf("time on air (32B): %v\n", s.Modem.TimeOnAir(32))
}

func (s *Shell) cmdSet(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("usage: set freq|sf|bw|cr|preamble|power <value>")
		return
	}
	val, err := strconv.Atoi(c.Args[1])
	if err != nil {
		c.Println("value must be an integer")
		return
	}
	cfg := s.Modem.Config()
	switch c.Args[0] {
	case "freq":
		cfg.Frequency = uint32(val)
	case "sf":
		cfg.SpreadingFactor = uint8(val)
	case "bw":
		cfg.Bandwidth = uint32(val)
	case "cr":
		cfg.CodingRate = uint8(val)
	case "preamble":
		cfg.PreambleLength = uint16(val)
	case "power":
		cfg.TxPower = int8(val)
	default:
		c.Printf("unknown field %q\n", c.Args[0])
		return
	}
	if err := s.Modem.Configure(cfg); err != nil {
		c.Printf("configure: %v\n", err)
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", s.Modem.Config().DataRate()))
}

func (s *Shell) cmdSend(c *ishell.Context) {
	if len(c.Args) == 0 {
		c.Println("usage: send <text>")
		return
	}
	payload := []byte(c.Args[0])
	for _, arg := range c.Args[1:] {
		payload = append(payload, ' ')
		payload = append(payload, arg...)
	}
	s.transmit(c, payload)
}

func (s *Shell) cmdSendHex(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("usage: sendhex <hex>")
		return
	}
	payload, err := hex.DecodeString(c.Args[0])
	if err != nil {
		c.Printf("bad hex payload: %v\n", err)
		return
	}
	s.transmit(c, payload)
}

func (s *Shell) transmit(c *ishell.Context, payload []byte) {
	start := time.Now()
	done, err := s.Modem.Send(context.Background(), payload)
	if err != nil {
		c.Printf("send: %v\n", err)
		return
	}
	c.Printf("sent %d bytes in %v (expected %v)\n",
		len(payload), done.Sub(start), s.Modem.TimeOnAir(len(payload)))
}

func (s *Shell) cmdRecv(c *ishell.Context) {
	timeout := s.recvTimeout
	if len(c.Args) == 1 {
		ms, err := strconv.Atoi(c.Args[0])
		if err != nil || ms < 0 {
			c.Println("usage: recv [timeout-ms]")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	pkt, err := s.Modem.Recv(context.Background(), timeout)
	if err == lora.ErrRecvTimeout {
		c.Println("timeout")
		return
	}
	if err != nil {
		c.Printf("recv: %v\n", err)
		return
	}
	c.Printf("%s at %s\n", pkt, pkt.Received.Format(time.RFC3339Nano))
}

func (s *Shell) cmdStats(c *ishell.Context) {
	c.Printf("crc errors: %d\n", s.Modem.CRCErrors())
}

func (s *Shell) report(c *ishell.Context, err error) {
	if err != nil {
		c.Printf("error: %v\n", err)
	}
}
