// Package gpio drives digital output lines.
package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultSysfsRoot is where the kernel exposes the legacy GPIO interface.
const DefaultSysfsRoot = "/sys/class/gpio"

var errInvalidLine = errors.New("gpio line must not be negative")

// Pin is a single digital output.
type Pin interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error
}

// SysfsPin drives a line through the sysfs GPIO interface.
type SysfsPin struct {
	root string
	line int
}

// OpenSysfs exports line under root (DefaultSysfsRoot when empty) and
// configures it as an output. Exporting an already exported line is fine.
func OpenSysfs(root string, line int) (*SysfsPin, error) {
	if line < 0 {
		return nil, errInvalidLine
	}
	if root == "" {
		root = DefaultSysfsRoot
	}

	p := &SysfsPin{root: root, line: line}

	if _, err := os.Stat(p.path()); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(root, "export"), strconv.Itoa(line)); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", line, err)
		}
	}

	if err := writeFile(filepath.Join(p.path(), "direction"), "out"); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", line, err)
	}

	return p, nil
}

// Line returns the GPIO line number.
func (p *SysfsPin) Line() int { return p.line }

// Set implements Pin.
func (p *SysfsPin) Set(high bool) error {
	value := "0"
	if high {
		value = "1"
	}
	if err := writeFile(filepath.Join(p.path(), "value"), value); err != nil {
		return fmt.Errorf("set gpio %d: %w", p.line, err)
	}
	return nil
}

func (p *SysfsPin) path() string {
	return filepath.Join(p.root, "gpio"+strconv.Itoa(p.line))
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

// Ensure SysfsPin implements Pin.
var _ Pin = (*SysfsPin)(nil)
