package pci

import (
	"fmt"
	"strings"
)

// BaseAddressKind classifies a decoded base address register.
type BaseAddressKind uint8

const (
	// IOSpaceKind is an IO port range (bit 0 of the raw dword set).
	IOSpaceKind BaseAddressKind = iota
	// MemorySpace32 is a 32-bit memory range.
	MemorySpace32
	// MemorySpace1M is the legacy "below 1MB" 16-bit memory encoding.
	MemorySpace1M
	// MemorySpace64 is a 64-bit memory range merged from two dwords.
	MemorySpace64
	// MemorySpace64Broken marks a 64-bit BAR whose high dword is missing
	// from the input; the low half is still reported.
	MemorySpace64Broken
	// ReservedSpace is the reserved memory width encoding.
	ReservedSpace
)

func (k BaseAddressKind) String() string {
	switch k {
	case IOSpaceKind:
		return "io"
	case MemorySpace32:
		return "mem32"
	case MemorySpace1M:
		return "mem1M"
	case MemorySpace64:
		return "mem64"
	case MemorySpace64Broken:
		return "mem64-broken"
	case ReservedSpace:
		return "reserved"
	default:
		return "invalid"
	}
}

// Resource is one OS-reported address range for a device, as found in the
// sysfs resource file or the procfs devices index.
type Resource struct {
	Start uint64
	End   uint64
	Flags uint64
}

// Size returns the range length, or zero for an empty slot.
func (r Resource) Size() uint64 {
	if r.Start == 0 && r.End == 0 {
		return 0
	}
	return r.End - r.Start + 1
}

// BaseAddress is the decoded view over one or two raw BAR dwords. Size is
// zero when no OS resource data was available; raw registers alone cannot
// tell a region's length without probing, which is out of scope here.
type BaseAddress struct {
	Index        int
	Kind         BaseAddressKind
	Prefetchable bool
	Base         uint64
	Size         uint64
}

// IsIO reports an IO port region.
func (b BaseAddress) IsIO() bool { return b.Kind == IOSpaceKind }

// IsMemory reports a memory region, including the broken 64-bit marker.
func (b BaseAddress) IsMemory() bool {
	switch b.Kind {
	case MemorySpace32, MemorySpace1M, MemorySpace64, MemorySpace64Broken:
		return true
	}
	return false
}

// SizeHuman renders the size for display; "-" when unknown.
func (b BaseAddress) SizeHuman() string {
	switch {
	case b.Size == 0:
		return "-"
	case b.Size >= 1<<30:
		return fmt.Sprintf("%dG", b.Size>>30)
	case b.Size >= 1<<20:
		return fmt.Sprintf("%dM", b.Size>>20)
	case b.Size >= 1<<10:
		return fmt.Sprintf("%dK", b.Size>>10)
	default:
		return fmt.Sprintf("%dB", b.Size)
	}
}

func (b BaseAddress) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "region %d: %s at %#x", b.Index, b.Kind, b.Base)
	if b.Prefetchable {
		sb.WriteString(" prefetchable")
	}
	if b.Size != 0 {
		fmt.Fprintf(&sb, " [size=%s]", b.SizeHuman())
	}
	return sb.String()
}

// DecodeBaseAddresses classifies and merges raw BAR dwords into typed
// regions. The input carries 1, 2 or 6 dwords depending on the header
// layout. Zero dwords consume their slot silently; a 64-bit region also
// consumes the following dword as its high half. Sizes are attached from
// the matching resource slot when one is present.
func DecodeBaseAddresses(dwords []uint32, resources []Resource) []BaseAddress {
	var out []BaseAddress

	for i := 0; i < len(dwords); i++ {
		raw := dwords[i]
		if raw == 0 {
			continue
		}

		ba := BaseAddress{Index: i}

		if raw&0x1 != 0 {
			ba.Kind = IOSpaceKind
			ba.Base = uint64(raw &^ 0x3)
		} else {
			ba.Prefetchable = raw&0x8 != 0
			switch raw >> 1 & 0x3 {
			case 0x0:
				ba.Kind = MemorySpace32
				ba.Base = uint64(raw &^ 0xF)
			case 0x1:
				ba.Kind = MemorySpace1M
				ba.Base = uint64(raw &^ 0xF)
			case 0x2:
				if i+1 < len(dwords) {
					ba.Kind = MemorySpace64
					ba.Base = uint64(raw&^0xF) | uint64(dwords[i+1])<<32
					i++
				} else {
					ba.Kind = MemorySpace64Broken
					ba.Base = uint64(raw &^ 0xF)
				}
			default:
				ba.Kind = ReservedSpace
			}
		}

		if ba.Index < len(resources) {
			ba.Size = resources[ba.Index].Size()
		}

		out = append(out, ba)
	}

	return out
}

// ParseResourceLines parses sysfs resource file lines of the form
// "start end flags" (hex). Up to 7 lines are meaningful: six BAR ranges
// and the expansion ROM range.
func ParseResourceLines(lines []string) []Resource {
	var out []Resource
	for i, line := range lines {
		if i == 7 {
			break
		}
		var r Resource
		n, _ := fmt.Sscanf(line, "0x%x 0x%x 0x%x", &r.Start, &r.End, &r.Flags)
		if n != 3 {
			n, _ = fmt.Sscanf(line, "%x %x %x", &r.Start, &r.End, &r.Flags)
		}
		if n != 3 {
			break
		}
		out = append(out, r)
	}
	return out
}
