package main

import (
	"flag"
	"log"
	"os"

	"github.com/radiotalks/lora.go/pkg/gateway/mqtt"
	"github.com/radiotalks/lora.go/pkg/monitor"
	"github.com/radiotalks/lora.go/pkg/run"
)

var (
	addr      = flag.String("listen", ":8266", "Websocket listen address")
	gwID      = flag.String("gateway", "", "Gateway ID to watch (empty = all)")
	brokerURL = flag.String("mqtt", defaultBrokerURL(), "MQTT broker URL")
)

func defaultBrokerURL() string {
	if val := os.Getenv("LORA_MQTT_URL"); val != "" {
		return val
	}
	return "mqtt://localhost:1883/lora/"
}

func main() {
	flag.Parse()

	queue, err := mqtt.NewQueueFromURL(*brokerURL)
	if err != nil {
		log.Fatalln(err)
	}

	runner := run.NewRunner().HandleSignals()
	runner.Go(monitor.New(*addr, *gwID, queue))
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
