// Package lora implements the modem-independent core of a LoRa radio
// driver: configuration, the receive/send state machine, time-on-air
// calculation, and synchronous and asynchronous packet APIs.
package lora

// The package is split in two layers:
//
//   - Driver is the narrow interface a chip driver implements
//     (see packages sx127x and sx126x).
//   - Modem wraps a Driver with the shared state machine: soft receive
//     deadlines, pausing a receive while a send is in flight and
//     resuming it afterwards, CRC accounting, and IRQ wakeups.
//
// Modem and its low-level operations (StartRecv/PollRecv/PollSend) are
// intended for a single goroutine. AsyncModem adds the locking needed
// to drive one sender and one receiver goroutine over the same radio.
