package access

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds shared by the access methods, distinguishable via errors.Is.
// Per-device file read failures are wrapped OS errors so that the original
// cause (permission denied vs not found) stays visible to callers.
var (
	// ErrNoSuchAddress reports a lookup for an address no device answers to.
	ErrNoSuchAddress = errors.New("no such device address")
	// ErrVPDUnsupported reports a vital product data read on a method
	// that cannot serve it.
	ErrVPDUnsupported = errors.New("vital product data not supported by this access method")
)

// DumpError reports a malformed line in captured dump text.
type DumpError struct {
	Line   int
	Reason string
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("dump line %d: %s", e.Line, e.Reason)
}
