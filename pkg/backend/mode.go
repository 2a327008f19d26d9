package backend

import (
	"fmt"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Mode selects which backend capabilities a Service exposes.
type Mode string

const (
	// ModeServer holds privileged credentials and exposes every accessor.
	ModeServer Mode = "server"
	// ModeClient only carries the public configuration.
	ModeClient Mode = "client"
	// ModeDemo authenticates sessions but has no documents or storage.
	ModeDemo Mode = "demo"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeServer, ModeClient, ModeDemo:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown backend mode %q", domain.ErrConfigInvalid, s)
	}
}

// Privileged reports whether the mode requires service account credentials.
func (m Mode) Privileged() bool {
	return m == ModeServer || m == ModeDemo
}
