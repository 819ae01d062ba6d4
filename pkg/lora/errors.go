package lora

import (
	"errors"
	"fmt"
)

var (
	// ErrRecvTimeout indicates a receive ended without a packet.
	ErrRecvTimeout = errors.New("receive timeout")
	// ErrPayloadTooLong indicates the payload exceeds the modem FIFO.
	ErrPayloadTooLong = errors.New("payload too long")
)

// ConfigError wraps the name of an invalid Config field.
type ConfigError struct {
	Field string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid lora config field %s", e.Field)
}
