package access

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/pciscan/pciscan/internal/pci"
)

// Void is the no-op access method: it knows no devices and supports no
// reads. It exists so that Probe is a total function.
type Void struct{}

func (Void) Name() string { return "void" }

func (Void) Device(addr pci.Addr) (*pci.Device, error) {
	return nil, errors.Wrap(ErrNoSuchAddress, addr.String())
}

func (Void) Scan() iter.Seq2[pci.Addr, error] {
	return func(func(pci.Addr, error) bool) {}
}

func (Void) Devices() iter.Seq2[*pci.Device, error] {
	return func(func(*pci.Device, error) bool) {}
}

func (Void) VitalProductData(addr pci.Addr) ([]byte, error) {
	return nil, errors.Wrap(ErrVPDUnsupported, addr.String())
}
