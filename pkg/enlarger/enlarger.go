// Package enlarger switches the enlarger lamp through a relay.
package enlarger

import (
	"fmt"
	"strings"
)

// Enlarger is a switchable enlarger lamp.
type Enlarger interface {
	SetEnabled(on bool) error
	Close() error
}

var (
	_ Enlarger = (*Serial)(nil)
	_ Enlarger = (*Modbus)(nil)
	_ Enlarger = (*Mock)(nil)
)

// Backend names a relay implementation.
type Backend string

const (
	BackendSerial Backend = "serial"
	BackendModbus Backend = "modbus"
	BackendMock   Backend = "mock"
)

// ParseBackend converts a configuration name to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(s)); b {
	case BackendSerial, BackendModbus, BackendMock:
		return b, nil
	case "":
		return BackendMock, nil
	}
	return "", fmt.Errorf("unknown enlarger backend %q", s)
}
