package trainer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrDevice indicates the requested compute target is unavailable.
var ErrDevice = errors.New("compute device unavailable")

// SelectDevice validates the configured compute target. Only the host
// CPU is supported; an unavailable target is fatal, there is no fallback.
func SelectDevice(name string) error {
	switch strings.ToLower(name) {
	case "", "cpu":
		return nil
	default:
		return fmt.Errorf("%w: %q (only \"cpu\" is supported)", ErrDevice, name)
	}
}
