package pci

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Configuration space region sizes.
const (
	// HeaderSize is the predefined header region (always present).
	HeaderSize = 64
	// LegacySize is the legacy PCI configuration space size.
	LegacySize = 256
	// ExtendedSize is the full PCIe extended configuration space size.
	ExtendedSize = 4096
)

// DeviceDependentStart is the first offset of the device dependent region,
// where legacy capability payloads live.
const DeviceDependentStart = 0x40

// ExtendedStart is the first offset of the extended configuration space.
const ExtendedStart = 0x100

// ErrConfigTooShort reports a buffer too small for the header it claims.
var ErrConfigTooShort = errors.New("configuration space buffer too short")

// ConfigSpace is a raw configuration space buffer (64, 256 or 4096 bytes)
// with little-endian register accessors. It is read-only: the decoder never
// writes configuration space.
type ConfigSpace struct {
	data []byte
}

// NewConfigSpace wraps a raw byte buffer. The buffer is copied.
func NewConfigSpace(data []byte) *ConfigSpace {
	cs := &ConfigSpace{data: make([]byte, len(data))}
	copy(cs.data, data)
	return cs
}

// Len returns the number of readable bytes.
func (cs *ConfigSpace) Len() int { return len(cs.data) }

// Bytes returns the underlying buffer.
func (cs *ConfigSpace) Bytes() []byte { return cs.data }

// ReadU8 reads a byte from the given offset; out of range reads yield zero.
func (cs *ConfigSpace) ReadU8(offset int) uint8 {
	if offset < 0 || offset >= len(cs.data) {
		return 0
	}
	return cs.data[offset]
}

// ReadU16 reads a little-endian uint16 from the given offset.
func (cs *ConfigSpace) ReadU16(offset int) uint16 {
	if offset < 0 || offset+2 > len(cs.data) {
		return 0
	}
	return binary.LittleEndian.Uint16(cs.data[offset : offset+2])
}

// ReadU32 reads a little-endian uint32 from the given offset.
func (cs *ConfigSpace) ReadU32(offset int) uint32 {
	if offset < 0 || offset+4 > len(cs.data) {
		return 0
	}
	return binary.LittleEndian.Uint32(cs.data[offset : offset+4])
}

// --- Predefined header accessors (offsets shared by all header types) ---

// VendorID returns the Vendor ID (offset 0x00).
func (cs *ConfigSpace) VendorID() uint16 { return cs.ReadU16(0x00) }

// DeviceID returns the Device ID (offset 0x02).
func (cs *ConfigSpace) DeviceID() uint16 { return cs.ReadU16(0x02) }

// Command returns the Command register (offset 0x04).
func (cs *ConfigSpace) Command() Command { return Command(cs.ReadU16(0x04)) }

// Status returns the Status register (offset 0x06).
func (cs *ConfigSpace) Status() Status { return Status(cs.ReadU16(0x06)) }

// RevisionID returns the Revision ID (offset 0x08).
func (cs *ConfigSpace) RevisionID() uint8 { return cs.ReadU8(0x08) }

// ClassCode returns the 24-bit class code (offsets 0x09-0x0B).
func (cs *ConfigSpace) ClassCode() ClassCode {
	return ClassCode(uint32(cs.ReadU8(0x0B))<<16 | uint32(cs.ReadU8(0x0A))<<8 | uint32(cs.ReadU8(0x09)))
}

// CacheLineSize returns the Cache Line Size (offset 0x0C).
func (cs *ConfigSpace) CacheLineSize() uint8 { return cs.ReadU8(0x0C) }

// LatencyTimer returns the Latency Timer (offset 0x0D).
func (cs *ConfigSpace) LatencyTimer() uint8 { return cs.ReadU8(0x0D) }

// HeaderTypeRaw returns the raw Header Type byte (offset 0x0E), including
// the multifunction flag in bit 7.
func (cs *ConfigSpace) HeaderTypeRaw() uint8 { return cs.ReadU8(0x0E) }

// IsMultiFunction reports bit 7 of the Header Type byte.
func (cs *ConfigSpace) IsMultiFunction() bool { return cs.HeaderTypeRaw()&0x80 != 0 }

// HeaderLayout returns the 7-bit header layout code (0, 1 or 2).
func (cs *ConfigSpace) HeaderLayout() uint8 { return cs.HeaderTypeRaw() & 0x7F }

// BIST returns the Built-In Self Test register (offset 0x0F).
func (cs *ConfigSpace) BIST() BIST { return BIST(cs.ReadU8(0x0F)) }

// HexDump renders the buffer the way lspci -xxx does, 16 bytes per line.
func (cs *ConfigSpace) HexDump(maxBytes int) string {
	if maxBytes <= 0 || maxBytes > len(cs.data) {
		maxBytes = len(cs.data)
	}

	var sb strings.Builder
	for i := 0; i < maxBytes; i += 16 {
		sb.WriteString(fmt.Sprintf("%03x: ", i))
		for j := 0; j < 16 && i+j < maxBytes; j++ {
			sb.WriteString(fmt.Sprintf("%02x ", cs.data[i+j]))
			if j == 7 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
