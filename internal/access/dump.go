package access

import (
	"bufio"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pciscan/pciscan/internal/pci"
)

// maxDumpOffset is the highest hex line offset a dump may carry: the last
// full 16-byte row of the extended configuration space.
const maxDumpOffset = 0xFF0

// Dump serves devices from captured hex-dump text, the format lspci -x
// emits: an address line opens each device, followed by rows of
// "<offset>: <up to 16 hex bytes>". The region size of the assembled
// buffer is picked by the highest byte offset seen: 64, 256 or 4096 bytes.
type Dump struct {
	text string
}

// NewDump wraps captured dump text.
func NewDump(text string) *Dump {
	return &Dump{text: text}
}

// NewDumpFile reads dump text from a file.
func NewDumpFile(fsys afero.Fs, path string) (*Dump, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dump %s", path)
	}
	return NewDump(string(data)), nil
}

func (m *Dump) Name() string { return "dump" }

// Device returns the first device in the dump stream with the given
// address, parsing no further than needed.
func (m *Dump) Device(addr pci.Addr) (*pci.Device, error) {
	return deviceByScan(m, addr)
}

func (m *Dump) Scan() iter.Seq2[pci.Addr, error] {
	return func(yield func(pci.Addr, error) bool) {
		for d, err := range m.Devices() {
			if err != nil {
				if !yield(pci.Addr{}, err) {
					return
				}
				continue
			}
			if !yield(d.Address, nil) {
				return
			}
		}
	}
}

func (m *Dump) Devices() iter.Seq2[*pci.Device, error] {
	return func(yield func(*pci.Device, error) bool) {
		var cur *dumpEntry

		flush := func() bool {
			if cur == nil {
				return true
			}
			d, err := cur.device()
			cur = nil
			return yield(d, err)
		}

		sc := bufio.NewScanner(strings.NewReader(m.text))
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			first := fields[0]

			if addr, ok := dumpAddrLine(first); ok {
				if !flush() {
					return
				}
				cur = &dumpEntry{addr: addr}
				continue
			}

			offset, ok := dumpHexOffset(first)
			if !ok {
				// Noise between devices (lspci prints device descriptions
				// after the address on the same line, not on their own).
				continue
			}
			if err := cur.fill(offset, fields[1:], lineNo); err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, errors.Wrap(err, "read dump text"))
			return
		}
		flush()
	}
}

func (m *Dump) VitalProductData(addr pci.Addr) ([]byte, error) {
	return nil, errors.Wrap(ErrVPDUnsupported, addr.String())
}

// dumpAddrLine reports whether the first whitespace-delimited field of a
// line introduces a new device. Accepted field lengths are 7 ("bb:dd.f"),
// 12 ("dddd:bb:dd.f") and 13 (long form with a trailing separator).
func dumpAddrLine(first string) (pci.Addr, bool) {
	switch len(first) {
	case 7, 12, 13:
	default:
		return pci.Addr{}, false
	}
	addr, err := pci.ParseAddr(strings.TrimRight(first, ":,"))
	if err != nil {
		return pci.Addr{}, false
	}
	return addr, true
}

// dumpHexOffset parses an "NN:" row label.
func dumpHexOffset(first string) (int, bool) {
	s, ok := strings.CutSuffix(first, ":")
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 12)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

type dumpEntry struct {
	addr pci.Addr
	buf  [pci.ExtendedSize]byte
	max  int // highest byte offset written
}

func (e *dumpEntry) fill(offset int, bytes []string, lineNo int) error {
	if e == nil {
		return &DumpError{Line: lineNo, Reason: "hex bytes before any device address line"}
	}
	if offset > maxDumpOffset {
		return &DumpError{Line: lineNo, Reason: fmt.Sprintf("offset %#x beyond %#x", offset, maxDumpOffset)}
	}
	if len(bytes) == 0 || len(bytes) > 16 {
		return &DumpError{Line: lineNo, Reason: fmt.Sprintf("%d byte values on line, want 1..16", len(bytes))}
	}

	for i, tok := range bytes {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return &DumpError{Line: lineNo, Reason: fmt.Sprintf("bad hex byte %q", tok)}
		}
		e.buf[offset+i] = byte(v)
	}
	if last := offset + len(bytes) - 1; last > e.max {
		e.max = last
	}
	return nil
}

// device assembles the entry into a decoded device. The buffer size bucket
// follows the highest offset seen.
func (e *dumpEntry) device() (*pci.Device, error) {
	var size int
	switch {
	case e.max < pci.HeaderSize:
		size = pci.HeaderSize
	case e.max < pci.LegacySize:
		size = pci.LegacySize
	default:
		size = pci.ExtendedSize
	}

	cs := pci.NewConfigSpace(e.buf[:size])
	h, err := cs.Header()
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", e.addr)
	}
	return pci.NewDevice(e.addr, cs, h), nil
}
