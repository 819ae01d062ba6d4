package hal

import "time"

// SPI performs full-duplex SPI transactions. The implementation owns
// chip select: it must be asserted for the whole of Tx and released
// afterwards.
type SPI interface {
	// Tx writes w while reading into r. w and r must be the same
	// length; either may be nil.
	Tx(w, r []byte) error
}

// OutputPin drives a single output line.
type OutputPin interface {
	Set(high bool) error
}

// InputPin reads a single input line.
type InputPin interface {
	Get() (bool, error)
}

// InterruptPin is an input line that can report rising edges.
type InterruptPin interface {
	InputPin
	// Watch calls fn on every rising edge until the returned stop
	// function is called. fn runs on an internal goroutine and must
	// not block.
	Watch(fn func()) (stop func(), err error)
}

// WaitLow polls pin until it reads low or the timeout expires.
// Returns false on timeout. Used for busy lines (e.g. SX126x BUSY).
func WaitLow(pin InputPin, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		high, err := pin.Get()
		if err != nil {
			return false, err
		}
		if !high {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(10 * time.Microsecond)
	}
}
