//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip holds the requested relay and sensor lines on one GPIO chip.
type Chip struct {
	chip       *gpiocdev.Chip
	lines      map[int]*gpiocdev.Line
	outputs    []Pin
	bootLevels map[int]int
}

// OpenChip requests outputs and inputs on the named chip. Each output is first
// claimed as-is to record its boot level, then driven to its inactive level.
// Inputs are pulled down to match the Pi boot defaults.
func OpenChip(name string, outputs []Pin, inputs []Pin) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	c := &Chip{
		chip:       chip,
		lines:      map[int]*gpiocdev.Line{},
		outputs:    outputs,
		bootLevels: map[int]int{},
	}

	for _, p := range outputs {
		line, err := chip.RequestLine(p.Number, gpiocdev.AsIs)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request output pin %d: %w", p.Number, err)
		}
		c.lines[p.Number] = line

		level, err := line.Value()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("read boot level of pin %d: %w", p.Number, err)
		}
		c.bootLevels[p.Number] = level

		if err := line.Reconfigure(gpiocdev.AsOutput(p.InactiveLevel())); err != nil {
			c.Close()
			return nil, fmt.Errorf("configure output pin %d: %w", p.Number, err)
		}
	}

	for _, p := range inputs {
		line, err := chip.RequestLine(p.Number, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request input pin %d: %w", p.Number, err)
		}
		c.lines[p.Number] = line
	}

	return c, nil
}

func (c *Chip) SetValue(pin int, value int) error {
	line, ok := c.lines[pin]
	if !ok {
		return fmt.Errorf("line %d not requested", pin)
	}
	return line.SetValue(value)
}

func (c *Chip) Value(pin int) (int, error) {
	line, ok := c.lines[pin]
	if !ok {
		return 0, fmt.Errorf("line %d not requested", pin)
	}
	return line.Value()
}

// BootLevels returns the raw output levels seen before they were driven.
func (c *Chip) BootLevels() map[int]int {
	return c.bootLevels
}

// Close drives every output inactive and releases the lines.
func (c *Chip) Close() error {
	var errs []error

	for _, p := range c.outputs {
		line, ok := c.lines[p.Number]
		if !ok {
			continue
		}
		if err := line.SetValue(p.InactiveLevel()); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", p.Number, err))
		}
	}
	for pin, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
