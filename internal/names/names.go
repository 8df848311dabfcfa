// Package names resolves PCI vendor, product and class IDs to human
// readable names using the system pci.ids database.
package names

import (
	"fmt"

	"github.com/jaypipes/pcidb"
	"k8s.io/klog/v2"

	"github.com/pciscan/pciscan/internal/pci"
)

// Resolver translates numeric IDs. With no database, or when forced
// numeric, every lookup falls back to hex notation.
type Resolver struct {
	db      *pcidb.PCIDB
	numeric bool
}

// NewResolver loads the system pci.ids database. A host without one is
// not an error; names degrade to numeric IDs.
func NewResolver(numeric bool) *Resolver {
	r := &Resolver{numeric: numeric}
	if numeric {
		return r
	}
	db, err := pcidb.New()
	if err != nil {
		klog.V(2).Infof("names: pci.ids unavailable: %v", err)
		return r
	}
	r.db = db
	return r
}

// Vendor returns the vendor name, or "vvvv" hex.
func (r *Resolver) Vendor(id uint16) string {
	if r.db != nil {
		if v, ok := r.db.Vendors[fmt.Sprintf("%04x", id)]; ok {
			return v.Name
		}
	}
	return fmt.Sprintf("%04x", id)
}

// Product returns the device model name, or "vvvv:dddd" hex.
func (r *Resolver) Product(vendor, device uint16) string {
	if r.db != nil {
		if p, ok := r.db.Products[fmt.Sprintf("%04x%04x", vendor, device)]; ok {
			return p.Name
		}
	}
	return fmt.Sprintf("%04x:%04x", vendor, device)
}

// Device returns the "Vendor Product" pair used in listing lines.
func (r *Resolver) Device(vendor, device uint16) string {
	return r.Vendor(vendor) + " " + r.Product(vendor, device)
}

// Class returns the class name for a class code, preferring the pci.ids
// subclass entry and falling back to the builtin class table.
func (r *Resolver) Class(c pci.ClassCode) string {
	if r.db != nil {
		if cls, ok := r.db.Classes[fmt.Sprintf("%02x", c.BaseClass())]; ok {
			sub := fmt.Sprintf("%02x", c.SubClass())
			for _, s := range cls.Subclasses {
				if s.ID == sub {
					return s.Name
				}
			}
			return cls.Name
		}
	}
	return c.Description()
}

// Subsystem returns the subsystem name for a product, or "". Only named
// subsystems are worth a line in verbose output.
func (r *Resolver) Subsystem(vendor, device, subVendor, subDevice uint16) string {
	if r.db == nil {
		return ""
	}
	p, ok := r.db.Products[fmt.Sprintf("%04x%04x", vendor, device)]
	if !ok {
		return ""
	}
	want := fmt.Sprintf("%04x", subDevice)
	wantV := fmt.Sprintf("%04x", subVendor)
	for _, s := range p.Subsystems {
		if s.ID == want && s.VendorID == wantV {
			return s.Name
		}
	}
	return ""
}
