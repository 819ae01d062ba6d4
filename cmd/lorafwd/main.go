package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/radiotalks/lora.go/pkg/cli/radio"
	"github.com/radiotalks/lora.go/pkg/gateway"
	"github.com/radiotalks/lora.go/pkg/lora"
	"github.com/radiotalks/lora.go/pkg/run"
)

func init() {
	gateway.SetupFlags()
	radio.SetupFlags()
}

func main() {
	flag.Parse()

	modem, closer, err := radio.Default().OpenModem()
	if err != nil {
		log.Fatalln(err)
	}
	defer closer()
	defer modem.Close()

	gw, err := gateway.NewConfig().NewGateway(lora.NewAsyncModem(modem))
	if err != nil {
		log.Fatalln(err)
	}

	runner := run.NewRunner().HandleSignals()
	runner.Go(gw)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
