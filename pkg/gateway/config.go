package gateway

import (
	"flag"
	"fmt"
	"os"

	"github.com/radiotalks/lora.go/pkg/gateway/mqtt"
	"github.com/radiotalks/lora.go/pkg/lora"
)

// Config provides the common options for the forwarder daemons.
type Config struct {
	// BrokerURL specifies the MQTT broker,
	// e.g. mqtt://host:port/topic-prefix.
	BrokerURL string
	// GatewayID identifies this gateway in topic names. Defaults to
	// an identifier derived from the host machine ID.
	GatewayID string
}

var defaultConfig = Config{
	BrokerURL: "mqtt://localhost:1883/lora/",
}

func init() {
	if val := os.Getenv("LORA_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
	defaultConfig.GatewayID = MachineID()
}

// SetupFlags registers the command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.BrokerURL, "mqtt", defaultConfig.BrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.GatewayID, "id", defaultConfig.GatewayID, "Gateway ID")
}

// NewConfig returns a copy of the default (flag-populated) config.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewGateway creates a Gateway over modem from the config.
func (c *Config) NewGateway(modem *lora.AsyncModem) (*Gateway, error) {
	if c.GatewayID == "" {
		return nil, fmt.Errorf("gateway ID must be specified")
	}
	queue, err := mqtt.NewQueueFromURL(c.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("create MQTT queue: %v", err)
	}
	return New(c.GatewayID, modem, queue), nil
}
