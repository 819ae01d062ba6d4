package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/radiotalks/lora.go/pkg/cli/radio"
	"github.com/radiotalks/lora.go/pkg/cli/sh"
)

func init() {
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

	sh.New(modem).Run()
}
