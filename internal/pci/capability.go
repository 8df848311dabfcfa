package pci

import (
	"iter"

	"github.com/pkg/errors"
)

// Standard PCI capability IDs.
const (
	CapIDPowerManagement   uint8 = 0x01
	CapIDAGP               uint8 = 0x02
	CapIDVPD               uint8 = 0x03
	CapIDSlotID            uint8 = 0x04
	CapIDMSI               uint8 = 0x05
	CapIDCompactPCIHotSwap uint8 = 0x06
	CapIDPCIX              uint8 = 0x07
	CapIDHyperTransport    uint8 = 0x08
	CapIDVendorSpecific    uint8 = 0x09
	CapIDDebugPort         uint8 = 0x0A
	CapIDCompactPCI        uint8 = 0x0B
	CapIDPCIHotPlug        uint8 = 0x0C
	CapIDBridgeSubsysVID   uint8 = 0x0D
	CapIDAGP8x             uint8 = 0x0E
	CapIDSecureDevice      uint8 = 0x0F
	CapIDPCIExpress        uint8 = 0x10
	CapIDMSIX              uint8 = 0x11
	CapIDSATADataIndex     uint8 = 0x12
	CapIDAdvancedFeatures  uint8 = 0x13
	CapIDEnhancedAlloc     uint8 = 0x14
	CapIDFlatteningPortal  uint8 = 0x15
)

// Capability chain failures.
var (
	// ErrCapabilityListUnavailable reports a walk attempted while the
	// Status capability-list bit is clear. By convention that means the
	// list is access denied, not empty.
	ErrCapabilityListUnavailable = errors.New("capability list not available")
	// ErrCapabilityOutOfRange reports a next pointer leaving the
	// device dependent region.
	ErrCapabilityOutOfRange = errors.New("capability pointer out of range")
)

// Capability is one node of the legacy capability list. Data is a view into
// the originating configuration space buffer, starting at the node's ID byte
// and running to the next node or the end of the legacy region.
type Capability struct {
	ID     uint8
	Offset uint8
	Data   []byte
}

// Name returns the conventional name for the capability ID.
func (c Capability) Name() string { return CapabilityName(c.ID) }

// CapabilityName returns the conventional name for a standard capability ID.
func CapabilityName(id uint8) string {
	switch id {
	case CapIDPowerManagement:
		return "Power Management"
	case CapIDAGP:
		return "AGP"
	case CapIDVPD:
		return "Vital Product Data"
	case CapIDSlotID:
		return "Slot Identification"
	case CapIDMSI:
		return "MSI"
	case CapIDCompactPCIHotSwap:
		return "CompactPCI HotSwap"
	case CapIDPCIX:
		return "PCI-X"
	case CapIDHyperTransport:
		return "HyperTransport"
	case CapIDVendorSpecific:
		return "Vendor Specific"
	case CapIDDebugPort:
		return "Debug Port"
	case CapIDCompactPCI:
		return "CompactPCI"
	case CapIDPCIHotPlug:
		return "PCI Hot-Plug"
	case CapIDBridgeSubsysVID:
		return "Bridge Subsystem VID"
	case CapIDAGP8x:
		return "AGP 8x"
	case CapIDSecureDevice:
		return "Secure Device"
	case CapIDPCIExpress:
		return "PCI Express"
	case CapIDMSIX:
		return "MSI-X"
	case CapIDSATADataIndex:
		return "SATA Data/Index"
	case CapIDAdvancedFeatures:
		return "Advanced Features"
	case CapIDEnhancedAlloc:
		return "Enhanced Allocation"
	case CapIDFlatteningPortal:
		return "Flattening Portal Bridge"
	default:
		return "Reserved"
	}
}

// Capabilities walks the legacy capability list. The next pointers are
// hardware-supplied data inside the buffer itself; a visited-offset guard
// terminates on cyclic or self-referencing chains. If the Status
// capability-list bit is clear the sequence yields a single
// ErrCapabilityListUnavailable and stops.
func (cs *ConfigSpace) Capabilities() iter.Seq2[Capability, error] {
	return func(yield func(Capability, error) bool) {
		if !cs.Status().CapabilitiesList() {
			yield(Capability{}, ErrCapabilityListUnavailable)
			return
		}

		start := 0x34
		if cs.HeaderLayout() == uint8(HeaderKindCardbus) {
			start = 0x14
		}

		limit := cs.Len()
		if limit > LegacySize {
			limit = LegacySize
		}

		visited := make(map[int]bool)
		ptr := int(cs.ReadU8(start)) &^ 0x3
		for ptr != 0 && !visited[ptr] {
			if ptr < DeviceDependentStart || ptr >= limit {
				yield(Capability{}, errors.Wrapf(ErrCapabilityOutOfRange, "%#02x", ptr))
				return
			}
			visited[ptr] = true

			next := int(cs.ReadU8(ptr+1)) &^ 0x3

			// Node extent: up to the next node when it follows this one,
			// else to the end of the legacy region.
			end := limit
			if next > ptr {
				end = next
			}
			if end > cs.Len() {
				end = cs.Len()
			}

			c := Capability{
				ID:     cs.ReadU8(ptr),
				Offset: uint8(ptr),
				Data:   cs.data[ptr:end],
			}
			if !yield(c, nil) {
				return
			}

			ptr = next
		}
	}
}

// PowerManagement is the decoded PCI Power Management capability (ID 0x01):
// the PMC capabilities register and the PMCSR control/status register.
type PowerManagement struct {
	Version            uint8
	PMEClock           bool
	DeviceSpecificInit bool
	AuxCurrent         uint8
	D1Support          bool
	D2Support          bool
	PMESupport         uint8

	PowerState  uint8
	NoSoftReset bool
	PMEEnable   bool
	DataSelect  uint8
	DataScale   uint8
	PMEStatus   bool

	BridgeExtensions uint8
	Data             uint8
}

// ErrCapabilityTruncated reports a typed decode over too few payload bytes.
var ErrCapabilityTruncated = errors.New("capability payload truncated")

// ErrCapabilityWrongID reports a typed decode applied to the wrong ID.
var ErrCapabilityWrongID = errors.New("capability ID mismatch")

// PowerManagement decodes the node as a Power Management capability.
func (c Capability) PowerManagement() (*PowerManagement, error) {
	if c.ID != CapIDPowerManagement {
		return nil, errors.Wrapf(ErrCapabilityWrongID, "id %#02x", c.ID)
	}
	if len(c.Data) < 8 {
		return nil, errors.Wrapf(ErrCapabilityTruncated, "power management needs 8 bytes, have %d", len(c.Data))
	}

	pmc := leU16(c.Data[2:])
	pmcsr := leU16(c.Data[4:])
	return &PowerManagement{
		Version:            uint8(pmc & 0x7),
		PMEClock:           pmc&0x0008 != 0,
		DeviceSpecificInit: pmc&0x0020 != 0,
		AuxCurrent:         uint8(pmc >> 6 & 0x7),
		D1Support:          pmc&0x0200 != 0,
		D2Support:          pmc&0x0400 != 0,
		PMESupport:         uint8(pmc >> 11 & 0x1F),

		PowerState:  uint8(pmcsr & 0x3),
		NoSoftReset: pmcsr&0x0008 != 0,
		PMEEnable:   pmcsr&0x0100 != 0,
		DataSelect:  uint8(pmcsr >> 9 & 0xF),
		DataScale:   uint8(pmcsr >> 13 & 0x3),
		PMEStatus:   pmcsr&0x8000 != 0,

		BridgeExtensions: c.Data[6],
		Data:             c.Data[7],
	}, nil
}

// MSI is the decoded Message Signaled Interrupts capability (ID 0x05).
// The register layout depends on the 64-bit and per-vector-masking control
// bits, so the decoded width varies between 10 and 24 bytes.
type MSI struct {
	Enabled          bool
	MultipleCapable  uint8 // log2 of the requestable vector count
	MultipleEnabled  uint8 // log2 of the enabled vector count
	Is64Bit          bool
	PerVectorMasking bool

	Address uint64
	Data    uint16

	MaskBits    uint32
	PendingBits uint32
}

// MSI decodes the node as an MSI capability.
func (c Capability) MSI() (*MSI, error) {
	if c.ID != CapIDMSI {
		return nil, errors.Wrapf(ErrCapabilityWrongID, "id %#02x", c.ID)
	}
	if len(c.Data) < 10 {
		return nil, errors.Wrapf(ErrCapabilityTruncated, "msi needs 10 bytes, have %d", len(c.Data))
	}

	control := leU16(c.Data[2:])
	m := &MSI{
		Enabled:          control&0x0001 != 0,
		MultipleCapable:  uint8(control >> 1 & 0x7),
		MultipleEnabled:  uint8(control >> 4 & 0x7),
		Is64Bit:          control&0x0080 != 0,
		PerVectorMasking: control&0x0100 != 0,
		Address:          uint64(leU32(c.Data[4:])),
	}

	dataOff := 8
	if m.Is64Bit {
		if len(c.Data) < 14 {
			return nil, errors.Wrapf(ErrCapabilityTruncated, "64-bit msi needs 14 bytes, have %d", len(c.Data))
		}
		m.Address |= uint64(leU32(c.Data[8:])) << 32
		dataOff = 12
	}
	m.Data = leU16(c.Data[dataOff:])

	if m.PerVectorMasking {
		maskOff := dataOff + 4
		if len(c.Data) < maskOff+8 {
			return nil, errors.Wrapf(ErrCapabilityTruncated, "masked msi needs %d bytes, have %d", maskOff+8, len(c.Data))
		}
		m.MaskBits = leU32(c.Data[maskOff:])
		m.PendingBits = leU32(c.Data[maskOff+4:])
	}

	return m, nil
}

// VendorSpecific is the decoded vendor-specific capability (ID 0x09):
// an opaque, length-prefixed byte block.
type VendorSpecific struct {
	Length uint8
	Data   []byte
}

// VendorSpecific decodes the node as a vendor-specific capability. Length
// counts the whole node including the 3 header bytes.
func (c Capability) VendorSpecific() (*VendorSpecific, error) {
	if c.ID != CapIDVendorSpecific {
		return nil, errors.Wrapf(ErrCapabilityWrongID, "id %#02x", c.ID)
	}
	if len(c.Data) < 3 {
		return nil, errors.Wrapf(ErrCapabilityTruncated, "vendor specific needs 3 bytes, have %d", len(c.Data))
	}

	length := c.Data[2]
	end := int(length)
	if end < 3 || end > len(c.Data) {
		end = len(c.Data)
	}
	return &VendorSpecific{Length: length, Data: c.Data[3:end]}, nil
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
