//go:build !linux

package gpio

import "errors"

// Chip is not available on non-Linux platforms.
type Chip struct{}

func OpenChip(name string, outputs []Pin, inputs []Pin) (*Chip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (c *Chip) SetValue(pin int, value int) error {
	return errors.New("gpio: not supported")
}

func (c *Chip) Value(pin int) (int, error) {
	return 0, errors.New("gpio: not supported")
}

func (c *Chip) BootLevels() map[int]int {
	return nil
}

func (c *Chip) Close() error {
	return nil
}
