// Package access abstracts the ways raw PCI configuration space bytes can be
// obtained: the live sysfs tree, the legacy procfs tree, a captured hex dump,
// or nothing at all. All methods share one enumeration contract.
package access

import (
	"iter"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"

	"github.com/pciscan/pciscan/internal/pci"
)

// Method is the capability set every backend implements. Scan and Devices
// return finite, lazily evaluated sequences; a caller abandons a scan by
// breaking out of the loop. Per-device failures travel as per-item errors
// so one bad device never aborts enumeration of the rest.
type Method interface {
	// Name identifies the method for diagnostics.
	Name() string
	// Device reads and decodes one device.
	Device(addr pci.Addr) (*pci.Device, error)
	// Scan enumerates device addresses.
	Scan() iter.Seq2[pci.Addr, error]
	// Devices enumerates fully decoded devices.
	Devices() iter.Seq2[*pci.Device, error]
	// VitalProductData reads the raw VPD block of one device.
	VitalProductData(addr pci.Addr) ([]byte, error)
}

// Probe selects the first access method whose source of truth is present:
// sysfs, then procfs, then the empty Void method. It is total and never
// fails; on a host with no PCI tree at all the Void method answers.
func Probe(fsys afero.Fs) Method {
	if m, err := NewLinuxSysfs(fsys, SysfsRoot); err == nil {
		klog.V(2).Infof("access: using sysfs at %s", SysfsRoot)
		return m
	} else {
		klog.V(2).Infof("access: sysfs unavailable: %v", err)
	}

	if m, err := NewLinuxProcfs(fsys, ProcfsRoot); err == nil {
		klog.V(2).Infof("access: using procfs at %s", ProcfsRoot)
		return m
	} else {
		klog.V(2).Infof("access: procfs unavailable: %v", err)
	}

	klog.V(2).Info("access: no platform source found, falling back to void")
	return Void{}
}

// deviceByScan is the default Device implementation: a linear scan of the
// method's device sequence until the address matches. Backends with a
// cheaper direct lookup override it.
func deviceByScan(m Method, addr pci.Addr) (*pci.Device, error) {
	for d, err := range m.Devices() {
		if err != nil {
			continue
		}
		if d.Address == addr {
			return d, nil
		}
	}
	return nil, errors.Wrap(ErrNoSuchAddress, addr.String())
}
