package pci

import (
	"iter"

	"github.com/pkg/errors"
)

// PCIe extended capability IDs.
const (
	ExtCapIDAER                uint16 = 0x0001
	ExtCapIDVCNoMFVC           uint16 = 0x0002
	ExtCapIDDeviceSerialNumber uint16 = 0x0003
	ExtCapIDPowerBudgeting     uint16 = 0x0004
	ExtCapIDRCLinkDeclaration  uint16 = 0x0005
	ExtCapIDRCInternalLinkCtl  uint16 = 0x0006
	ExtCapIDRCEventCollector   uint16 = 0x0007
	ExtCapIDMFVC               uint16 = 0x0008
	ExtCapIDVC                 uint16 = 0x0009
	ExtCapIDRCRB               uint16 = 0x000A
	ExtCapIDVendorSpecific     uint16 = 0x000B
	ExtCapIDCAC                uint16 = 0x000C
	ExtCapIDACS                uint16 = 0x000D
	ExtCapIDARI                uint16 = 0x000E
	ExtCapIDATS                uint16 = 0x000F
	ExtCapIDSRIOV              uint16 = 0x0010
	ExtCapIDMRIOV              uint16 = 0x0011
	ExtCapIDMulticast          uint16 = 0x0012
	ExtCapIDPageRequest        uint16 = 0x0013
	ExtCapIDResizableBAR       uint16 = 0x0015
	ExtCapIDDPA                uint16 = 0x0016
	ExtCapIDTPHRequester       uint16 = 0x0017
	ExtCapIDLTR                uint16 = 0x0018
	ExtCapIDSecondaryPCIe      uint16 = 0x0019
	ExtCapIDPMUX               uint16 = 0x001A
	ExtCapIDPASID              uint16 = 0x001B
	ExtCapIDLNR                uint16 = 0x001C
	ExtCapIDDPC                uint16 = 0x001D
	ExtCapIDL1PMSubstates      uint16 = 0x001E
	ExtCapIDPTM                uint16 = 0x001F
)

// ErrExtCapabilityTruncated reports an extended capability node with fewer
// than 8 readable bytes left in the buffer. The error applies to that one
// node; the walk continues at its next pointer.
var ErrExtCapabilityTruncated = errors.New("extended capability node truncated")

// ExtCapability is one node of the extended capability list. Its 32-bit
// header encodes the ID, a version and a 12-bit next offset. Data is a view
// into the originating buffer, header included.
type ExtCapability struct {
	ID      uint16
	Version uint8
	Offset  uint16
	Data    []byte
}

// Name returns the conventional name for the extended capability ID.
func (c ExtCapability) Name() string { return ExtCapabilityName(c.ID) }

// ExtCapabilityName returns the conventional name for an extended
// capability ID.
func ExtCapabilityName(id uint16) string {
	switch id {
	case ExtCapIDAER:
		return "Advanced Error Reporting"
	case ExtCapIDVCNoMFVC, ExtCapIDVC:
		return "Virtual Channel"
	case ExtCapIDDeviceSerialNumber:
		return "Device Serial Number"
	case ExtCapIDPowerBudgeting:
		return "Power Budgeting"
	case ExtCapIDRCLinkDeclaration:
		return "Root Complex Link Declaration"
	case ExtCapIDVendorSpecific:
		return "Vendor Specific"
	case ExtCapIDACS:
		return "Access Control Services"
	case ExtCapIDARI:
		return "Alternative Routing-ID Interpretation"
	case ExtCapIDATS:
		return "Address Translation Services"
	case ExtCapIDSRIOV:
		return "Single Root I/O Virtualization"
	case ExtCapIDPageRequest:
		return "Page Request Interface"
	case ExtCapIDResizableBAR:
		return "Resizable BAR"
	case ExtCapIDLTR:
		return "Latency Tolerance Reporting"
	case ExtCapIDSecondaryPCIe:
		return "Secondary PCI Express"
	case ExtCapIDPASID:
		return "Process Address Space ID"
	case ExtCapIDDPC:
		return "Downstream Port Containment"
	case ExtCapIDL1PMSubstates:
		return "L1 PM Substates"
	case ExtCapIDPTM:
		return "Precision Time Measurement"
	default:
		return "Reserved"
	}
}

// ExtendedCapabilities walks the extended capability list starting at the
// fixed offset 0x100. Buffers without an extended region yield nothing.
// An all-zero (or all-ones) header before any entry means the extended
// space is empty, as opposed to the end of a chain, which is a zero next
// offset. A visited-offset guard terminates cyclic chains.
func (cs *ConfigSpace) ExtendedCapabilities() iter.Seq2[ExtCapability, error] {
	return func(yield func(ExtCapability, error) bool) {
		if cs.Len() <= LegacySize {
			return
		}

		visited := make(map[int]bool)
		offset := ExtendedStart
		found := false

		for offset >= ExtendedStart && offset < cs.Len() && !visited[offset] {
			visited[offset] = true

			header := cs.ReadU32(offset)
			if !found && (header == 0 || header == 0xFFFFFFFF) {
				return
			}

			next := int(header >> 20 &^ 0x3)

			if cs.Len()-offset < 8 {
				if !yield(ExtCapability{}, errors.Wrapf(ErrExtCapabilityTruncated, "at %#03x", offset)) {
					return
				}
				if next == 0 {
					return
				}
				offset = next
				continue
			}

			// Node extent: up to the next node when it follows this one,
			// else to the end of the buffer.
			end := cs.Len()
			if next > offset {
				end = next
			}

			c := ExtCapability{
				ID:      uint16(header),
				Version: uint8(header >> 16 & 0xF),
				Offset:  uint16(offset),
				Data:    cs.data[offset:end],
			}
			found = true
			if !yield(c, nil) {
				return
			}

			if next == 0 {
				return
			}
			offset = next
		}
	}
}
