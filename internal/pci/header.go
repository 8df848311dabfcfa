package pci

import (
	"fmt"

	"github.com/pkg/errors"
)

// Command is the Command register (offset 0x04).
type Command uint16

// Command register bits.
func (c Command) IOSpace() bool               { return c&0x0001 != 0 }
func (c Command) MemorySpace() bool           { return c&0x0002 != 0 }
func (c Command) BusMaster() bool             { return c&0x0004 != 0 }
func (c Command) SpecialCycles() bool         { return c&0x0008 != 0 }
func (c Command) MemoryWriteInvalidate() bool { return c&0x0010 != 0 }
func (c Command) VGAPaletteSnoop() bool       { return c&0x0020 != 0 }
func (c Command) ParityErrorResponse() bool   { return c&0x0040 != 0 }
func (c Command) SERR() bool                  { return c&0x0100 != 0 }
func (c Command) FastBackToBack() bool        { return c&0x0200 != 0 }
func (c Command) InterruptDisable() bool      { return c&0x0400 != 0 }

// Status is the Status register (offset 0x06).
type Status uint16

// Status register bits.
func (s Status) InterruptStatus() bool       { return s&0x0008 != 0 }
func (s Status) CapabilitiesList() bool      { return s&0x0010 != 0 }
func (s Status) Capable66MHz() bool          { return s&0x0020 != 0 }
func (s Status) FastBackToBack() bool        { return s&0x0080 != 0 }
func (s Status) MasterDataParityError() bool { return s&0x0100 != 0 }
func (s Status) DEVSELTiming() uint8         { return uint8(s >> 9 & 0x3) }
func (s Status) SignaledTargetAbort() bool   { return s&0x0800 != 0 }
func (s Status) ReceivedTargetAbort() bool   { return s&0x1000 != 0 }
func (s Status) ReceivedMasterAbort() bool   { return s&0x2000 != 0 }
func (s Status) SignaledSystemError() bool   { return s&0x4000 != 0 }
func (s Status) DetectedParityError() bool   { return s&0x8000 != 0 }

// ClassCode is the 24-bit class code: base << 16 | sub << 8 | prog-if.
type ClassCode uint32

// BaseClass returns the base class byte.
func (c ClassCode) BaseClass() uint8 { return uint8(c >> 16) }

// SubClass returns the sub-class byte.
func (c ClassCode) SubClass() uint8 { return uint8(c >> 8) }

// ProgIF returns the programming interface byte.
func (c ClassCode) ProgIF() uint8 { return uint8(c) }

// BIST is the Built-In Self Test register. It round-trips losslessly
// to and from its raw byte.
type BIST uint8

// Capable reports whether the device implements BIST.
func (b BIST) Capable() bool { return b&0x80 != 0 }

// Running reports whether a self test is in progress.
func (b BIST) Running() bool { return b&0x40 != 0 }

// CompletionCode returns the self test result; zero means success.
func (b BIST) CompletionCode() uint8 { return uint8(b) & 0x0F }

// InterruptPin is the legacy interrupt pin a function uses, if any.
type InterruptPin uint8

// Interrupt pin values 1-4; zero means the function uses no pin.
const (
	PinUnused InterruptPin = 0
	PinIntA   InterruptPin = 1
	PinIntB   InterruptPin = 2
	PinIntC   InterruptPin = 3
	PinIntD   InterruptPin = 4
)

// IsReserved reports a raw value outside the defined range.
func (p InterruptPin) IsReserved() bool { return p > PinIntD }

func (p InterruptPin) String() string {
	switch p {
	case PinUnused:
		return "unused"
	case PinIntA, PinIntB, PinIntC, PinIntD:
		return fmt.Sprintf("INT%c#", 'A'+int(p)-1)
	default:
		return fmt.Sprintf("reserved(%#02x)", uint8(p))
	}
}

// ExpansionROM is the decoded Expansion ROM Base Address register.
// Size is only known from OS-reported resource data, never from the
// register itself; zero means unknown.
type ExpansionROM struct {
	Enabled bool
	Address uint32
	Size    uint64
}

func decodeExpansionROM(raw uint32) ExpansionROM {
	return ExpansionROM{
		Enabled: raw&0x1 != 0,
		Address: raw &^ 0x7FF,
	}
}

// HeaderKind discriminates the three header layouts, taken from the
// low 7 bits of the Header Type byte.
type HeaderKind uint8

const (
	HeaderKindNormal  HeaderKind = 0x00
	HeaderKindBridge  HeaderKind = 0x01
	HeaderKindCardbus HeaderKind = 0x02
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderKindNormal:
		return "normal"
	case HeaderKindBridge:
		return "bridge"
	case HeaderKindCardbus:
		return "cardbus"
	default:
		return fmt.Sprintf("unknown(%#02x)", uint8(k))
	}
}

// ErrUnknownHeaderType reports a layout code other than 0, 1 or 2.
var ErrUnknownHeaderType = errors.New("unknown header type")

// HeaderCommon is the first 16 bytes, identical across all header layouts.
type HeaderCommon struct {
	VendorID      uint16
	DeviceID      uint16
	Command       Command
	Status        Status
	RevisionID    uint8
	ClassCode     ClassCode
	CacheLineSize uint8
	LatencyTimer  uint8
	BIST          BIST
}

// NormalHeader holds the type 0 specific fields.
type NormalHeader struct {
	BaseAddresses       [6]uint32
	CardbusCISPointer   uint32
	SubsystemVendorID   uint16
	SubsystemID         uint16
	ExpansionROM        ExpansionROM
	CapabilitiesPointer uint8
	InterruptLine       uint8
	InterruptPin        InterruptPin
	MinGrant            uint8
	MaxLatency          uint8
}

// BridgeHeader holds the type 1 (PCI-to-PCI bridge) specific fields.
type BridgeHeader struct {
	BaseAddresses         [2]uint32
	PrimaryBus            uint8
	SecondaryBus          uint8
	SubordinateBus        uint8
	SecondaryLatencyTimer uint8
	IOBase                uint8
	IOLimit               uint8
	SecondaryStatus       Status
	MemoryBase            uint16
	MemoryLimit           uint16
	PrefetchableBase      uint16
	PrefetchableLimit     uint16
	PrefetchableBaseHi    uint32
	PrefetchableLimitHi   uint32
	IOBaseHi              uint16
	IOLimitHi             uint16
	CapabilitiesPointer   uint8
	ExpansionROM          ExpansionROM
	InterruptLine         uint8
	InterruptPin          InterruptPin
	BridgeControl         uint16
}

// IOAddrRangeKind describes the encoding of a Cardbus IO window.
type IOAddrRangeKind uint8

const (
	IOAddrRange16 IOAddrRangeKind = iota
	IOAddrRange32
	IOAddrRangeUnknown
)

// IOAddrRange is one of the two Cardbus IO windows. The low 2 bits of the
// raw base select the 16-bit or 32-bit address encoding.
type IOAddrRange struct {
	Kind  IOAddrRangeKind
	Base  uint32
	Limit uint32
}

func decodeIOAddrRange(base, limit uint32) IOAddrRange {
	switch base & 0x3 {
	case 0x0:
		return IOAddrRange{Kind: IOAddrRange16, Base: base & 0xFFFC, Limit: limit & 0xFFFC}
	case 0x1:
		return IOAddrRange{Kind: IOAddrRange32, Base: base &^ 0x3, Limit: limit &^ 0x3}
	default:
		return IOAddrRange{Kind: IOAddrRangeUnknown, Base: base, Limit: limit}
	}
}

// CardbusHeader holds the type 2 (PCI-to-Cardbus bridge) specific fields.
// Decoding it requires at least 72 readable bytes.
type CardbusHeader struct {
	SocketBase          uint32
	CapabilitiesPointer uint8
	SecondaryStatus     Status
	PCIBus              uint8
	CardbusBus          uint8
	SubordinateBus      uint8
	CardbusLatency      uint8
	MemoryBase0         uint32
	MemoryLimit0        uint32
	MemoryBase1         uint32
	MemoryLimit1        uint32
	IORange0            IOAddrRange
	IORange1            IOAddrRange
	InterruptLine       uint8
	InterruptPin        InterruptPin
	BridgeControl       uint16
	SubsystemVendorID   uint16
	SubsystemID         uint16
	LegacyModeBase      uint32
}

// Header is the decoded configuration space header: the common prefix plus
// exactly one layout variant, discriminated by Kind.
type Header struct {
	Common        HeaderCommon
	Kind          HeaderKind
	Multifunction bool

	Normal  *NormalHeader
	Bridge  *BridgeHeader
	Cardbus *CardbusHeader
}

// Header decodes the fixed-offset header from the buffer. It needs at least
// 64 bytes, or 72 for a Cardbus layout. Failure is fatal for this one device
// only; callers enumerating many devices skip and report.
func (cs *ConfigSpace) Header() (*Header, error) {
	if cs.Len() < HeaderSize {
		return nil, errors.Wrapf(ErrConfigTooShort, "%d bytes", cs.Len())
	}

	h := &Header{
		Common: HeaderCommon{
			VendorID:      cs.VendorID(),
			DeviceID:      cs.DeviceID(),
			Command:       cs.Command(),
			Status:        cs.Status(),
			RevisionID:    cs.RevisionID(),
			ClassCode:     cs.ClassCode(),
			CacheLineSize: cs.CacheLineSize(),
			LatencyTimer:  cs.LatencyTimer(),
			BIST:          cs.BIST(),
		},
		Kind:          HeaderKind(cs.HeaderLayout()),
		Multifunction: cs.IsMultiFunction(),
	}

	switch h.Kind {
	case HeaderKindNormal:
		h.Normal = decodeNormal(cs)
	case HeaderKindBridge:
		h.Bridge = decodeBridge(cs)
	case HeaderKindCardbus:
		if cs.Len() < 72 {
			return nil, errors.Wrapf(ErrConfigTooShort, "cardbus header needs 72 bytes, have %d", cs.Len())
		}
		h.Cardbus = decodeCardbus(cs)
	default:
		return nil, errors.Wrapf(ErrUnknownHeaderType, "%#02x", uint8(h.Kind))
	}

	return h, nil
}

func decodeNormal(cs *ConfigSpace) *NormalHeader {
	n := &NormalHeader{
		CardbusCISPointer:   cs.ReadU32(0x28),
		SubsystemVendorID:   cs.ReadU16(0x2C),
		SubsystemID:         cs.ReadU16(0x2E),
		ExpansionROM:        decodeExpansionROM(cs.ReadU32(0x30)),
		CapabilitiesPointer: cs.ReadU8(0x34),
		InterruptLine:       cs.ReadU8(0x3C),
		InterruptPin:        InterruptPin(cs.ReadU8(0x3D)),
		MinGrant:            cs.ReadU8(0x3E),
		MaxLatency:          cs.ReadU8(0x3F),
	}
	for i := range n.BaseAddresses {
		n.BaseAddresses[i] = cs.ReadU32(0x10 + i*4)
	}
	return n
}

func decodeBridge(cs *ConfigSpace) *BridgeHeader {
	return &BridgeHeader{
		BaseAddresses:         [2]uint32{cs.ReadU32(0x10), cs.ReadU32(0x14)},
		PrimaryBus:            cs.ReadU8(0x18),
		SecondaryBus:          cs.ReadU8(0x19),
		SubordinateBus:        cs.ReadU8(0x1A),
		SecondaryLatencyTimer: cs.ReadU8(0x1B),
		IOBase:                cs.ReadU8(0x1C),
		IOLimit:               cs.ReadU8(0x1D),
		SecondaryStatus:       Status(cs.ReadU16(0x1E)),
		MemoryBase:            cs.ReadU16(0x20),
		MemoryLimit:           cs.ReadU16(0x22),
		PrefetchableBase:      cs.ReadU16(0x24),
		PrefetchableLimit:     cs.ReadU16(0x26),
		PrefetchableBaseHi:    cs.ReadU32(0x28),
		PrefetchableLimitHi:   cs.ReadU32(0x2C),
		IOBaseHi:              cs.ReadU16(0x30),
		IOLimitHi:             cs.ReadU16(0x32),
		CapabilitiesPointer:   cs.ReadU8(0x34),
		ExpansionROM:          decodeExpansionROM(cs.ReadU32(0x38)),
		InterruptLine:         cs.ReadU8(0x3C),
		InterruptPin:          InterruptPin(cs.ReadU8(0x3D)),
		BridgeControl:         cs.ReadU16(0x3E),
	}
}

func decodeCardbus(cs *ConfigSpace) *CardbusHeader {
	return &CardbusHeader{
		SocketBase:          cs.ReadU32(0x10),
		CapabilitiesPointer: cs.ReadU8(0x14),
		SecondaryStatus:     Status(cs.ReadU16(0x16)),
		PCIBus:              cs.ReadU8(0x18),
		CardbusBus:          cs.ReadU8(0x19),
		SubordinateBus:      cs.ReadU8(0x1A),
		CardbusLatency:      cs.ReadU8(0x1B),
		MemoryBase0:         cs.ReadU32(0x1C),
		MemoryLimit0:        cs.ReadU32(0x20),
		MemoryBase1:         cs.ReadU32(0x24),
		MemoryLimit1:        cs.ReadU32(0x28),
		IORange0:            decodeIOAddrRange(cs.ReadU32(0x2C), cs.ReadU32(0x30)),
		IORange1:            decodeIOAddrRange(cs.ReadU32(0x34), cs.ReadU32(0x38)),
		InterruptLine:       cs.ReadU8(0x3C),
		InterruptPin:        InterruptPin(cs.ReadU8(0x3D)),
		BridgeControl:       cs.ReadU16(0x3E),
		SubsystemVendorID:   cs.ReadU16(0x40),
		SubsystemID:         cs.ReadU16(0x42),
		LegacyModeBase:      cs.ReadU32(0x44),
	}
}

// CapabilitiesPointer returns the capability list start for the header's
// layout. Only meaningful when Status.CapabilitiesList is set.
func (h *Header) CapabilitiesPointer() uint8 {
	switch h.Kind {
	case HeaderKindNormal:
		return h.Normal.CapabilitiesPointer
	case HeaderKindBridge:
		return h.Bridge.CapabilitiesPointer
	case HeaderKindCardbus:
		return h.Cardbus.CapabilitiesPointer
	}
	return 0
}

// BaseAddressDwords returns the raw BAR dwords the layout carries:
// six for normal headers, two for bridges, one (the socket base) for cardbus.
func (h *Header) BaseAddressDwords() []uint32 {
	switch h.Kind {
	case HeaderKindNormal:
		return h.Normal.BaseAddresses[:]
	case HeaderKindBridge:
		return h.Bridge.BaseAddresses[:]
	case HeaderKindCardbus:
		return []uint32{h.Cardbus.SocketBase}
	}
	return nil
}

// InterruptPin returns the layout's interrupt pin field.
func (h *Header) InterruptPin() InterruptPin {
	switch h.Kind {
	case HeaderKindNormal:
		return h.Normal.InterruptPin
	case HeaderKindBridge:
		return h.Bridge.InterruptPin
	case HeaderKindCardbus:
		return h.Cardbus.InterruptPin
	}
	return PinUnused
}
