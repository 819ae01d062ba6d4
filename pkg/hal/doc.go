// Package hal defines the minimal hardware access interfaces used by
// the modem drivers.
package hal

// The interfaces are intentionally narrow so that drivers can be
// backed by periph.io on a host (see package periphhal), or by an
// in-memory implementation in tests (see package haltest).
