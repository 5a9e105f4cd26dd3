package hardware

import "sync"

// Null is a driver without hardware: it reports a fixed raw sample and
// remembers the last duty written. Used for bench runs and tests.
type Null struct {
	mu   sync.Mutex
	raw  int
	duty uint8
}

// NewNull creates a Null driver reporting raw for every sample.
func NewNull(raw int) *Null {
	return &Null{raw: raw}
}

func (n *Null) ReadRaw() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.raw, nil
}

func (n *Null) SetDuty(duty uint8) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.duty = duty
	return nil
}

// SetRaw changes the reported sample.
func (n *Null) SetRaw(raw int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raw = raw
}

// Duty returns the last duty written.
func (n *Null) Duty() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.duty
}

func (n *Null) Close() error {
	return nil
}
