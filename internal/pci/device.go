package pci

import "fmt"

// Device is one discovered PCI function: its address, decoded header and
// whatever enrichment the access method could provide. Enrichment fields
// are best-effort; their absence is not an error.
type Device struct {
	Address Addr
	Config  *ConfigSpace
	Header  *Header

	Label         string
	PhySlot       string
	NumaNode      int // -1 when unknown
	IOMMUGroup    int // -1 when unknown
	IRQ           int // -1 when unknown
	Resources     []Resource
	Driver        string
	KernelModules []string
}

// NewDevice builds a Device with unknown enrichment fields.
func NewDevice(addr Addr, cs *ConfigSpace, h *Header) *Device {
	return &Device{
		Address:    addr,
		Config:     cs,
		Header:     h,
		NumaNode:   -1,
		IOMMUGroup: -1,
		IRQ:        -1,
	}
}

// BaseAddresses resolves the device's BAR dwords, attaching sizes from the
// OS-reported resource ranges when present.
func (d *Device) BaseAddresses() []BaseAddress {
	return DecodeBaseAddresses(d.Header.BaseAddressDwords(), d.Resources)
}

// ROMResource returns the expansion ROM range when the access method
// reported one (the seventh resource slot).
func (d *Device) ROMResource() (Resource, bool) {
	if len(d.Resources) < 7 || d.Resources[6].Size() == 0 {
		return Resource{}, false
	}
	return d.Resources[6], true
}

// Summary returns a one line lspci-style description.
func (d *Device) Summary() string {
	c := d.Header.Common
	return fmt.Sprintf("%s %s: %04x:%04x (rev %02x)",
		d.Address.Short(), c.ClassCode.Description(), c.VendorID, c.DeviceID, c.RevisionID)
}

// classSubNames maps (base_class << 8 | sub_class) to lspci-style names.
var classSubNames = map[uint16]string{
	// Mass Storage
	0x0100: "SCSI storage controller",
	0x0101: "IDE interface",
	0x0104: "RAID bus controller",
	0x0106: "SATA controller",
	0x0107: "Serial Attached SCSI controller",
	0x0108: "Non-Volatile memory controller",
	// Network
	0x0200: "Ethernet controller",
	0x0280: "Network controller",
	// Display
	0x0300: "VGA compatible controller",
	0x0302: "3D controller",
	// Multimedia
	0x0400: "Multimedia video controller",
	0x0401: "Multimedia audio controller",
	0x0403: "Audio device",
	// Memory
	0x0500: "RAM memory",
	0x0580: "Memory controller",
	// Bridge
	0x0600: "Host bridge",
	0x0601: "ISA bridge",
	0x0604: "PCI bridge",
	0x0607: "CardBus bridge",
	0x0680: "Bridge",
	// Communication
	0x0700: "Serial controller",
	0x0780: "Communication controller",
	// System Peripheral
	0x0800: "PIC",
	0x0880: "System peripheral",
	// Serial Bus
	0x0C03: "USB controller",
	0x0C05: "SMBus",
	// Wireless
	0x0D00: "IRDA controller",
	0x0D11: "Bluetooth",
	0x0D80: "Wireless controller",
	// Signal Processing
	0x1180: "Signal processing controller",
	// Processing Accelerator
	0x1200: "Processing accelerator",
}

// classBaseNames maps base_class to a fallback name.
var classBaseNames = map[uint8]string{
	0x00: "Unclassified device",
	0x01: "Mass storage controller",
	0x02: "Network controller",
	0x03: "Display controller",
	0x04: "Multimedia controller",
	0x05: "Memory controller",
	0x06: "Bridge",
	0x07: "Communication controller",
	0x08: "System peripheral",
	0x09: "Input device controller",
	0x0A: "Docking station",
	0x0B: "Processor",
	0x0C: "Serial bus controller",
	0x0D: "Wireless controller",
	0x0E: "Intelligent controller",
	0x0F: "Satellite communication controller",
	0x10: "Encryption controller",
	0x11: "Signal processing controller",
	0x12: "Processing accelerator",
	0xFF: "Unassigned class",
}

// Description returns a human-readable class name matching lspci style.
func (c ClassCode) Description() string {
	key := uint16(c.BaseClass())<<8 | uint16(c.SubClass())
	if name, ok := classSubNames[key]; ok {
		return name
	}
	if name, ok := classBaseNames[c.BaseClass()]; ok {
		return name
	}
	return fmt.Sprintf("Class [%02x%02x]", c.BaseClass(), c.SubClass())
}
