package pci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address parse failures, one kind per grammar rule.
var (
	ErrAddrEmpty          = errors.New("empty device address")
	ErrAddrNoFunction     = errors.New("device address has no function separator")
	ErrAddrNoDevice       = errors.New("device address has no device separator")
	ErrDeviceOutOfRange   = errors.New("device number out of range")
	ErrFunctionOutOfRange = errors.New("function number out of range")
)

// Addr identifies one PCI function: domain, bus, device and function.
// The zero value is 0000:00:00.0.
type Addr struct {
	Domain   uint16
	Bus      uint8
	Device   uint8 // 5 bits
	Function uint8 // 3 bits
}

// ParseAddr parses "bb:dd.f" or "dddd:bb:dd.f", case-insensitive hex,
// surrounding whitespace ignored. Segments are split right to left: the
// last dot separates the function, the last colon before it the device,
// and anything before a remaining colon is the domain.
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Addr{}, errors.WithStack(ErrAddrEmpty)
	}

	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return Addr{}, errors.Wrap(ErrAddrNoFunction, s)
	}
	head, fnStr := s[:dot], s[dot+1:]

	colon := strings.LastIndexByte(head, ':')
	if colon < 0 {
		return Addr{}, errors.Wrap(ErrAddrNoDevice, s)
	}
	busPart, devStr := head[:colon], head[colon+1:]

	var a Addr
	var err error

	if dc := strings.LastIndexByte(busPart, ':'); dc >= 0 {
		var domain uint64
		if domain, err = parseHexSegment("domain", busPart[:dc], 16); err != nil {
			return Addr{}, err
		}
		a.Domain = uint16(domain)
		busPart = busPart[dc+1:]
	}

	bus, err := parseHexSegment("bus", busPart, 8)
	if err != nil {
		return Addr{}, err
	}
	a.Bus = uint8(bus)

	dev, err := parseHexSegment("device", devStr, 8)
	if err != nil {
		return Addr{}, err
	}
	if dev > 0x1F {
		return Addr{}, errors.Wrapf(ErrDeviceOutOfRange, "%#02x", dev)
	}
	a.Device = uint8(dev)

	fn, err := parseHexSegment("function", fnStr, 8)
	if err != nil {
		return Addr{}, err
	}
	if fn > 0x7 {
		return Addr{}, errors.Wrapf(ErrFunctionOutOfRange, "%#x", fn)
	}
	a.Function = uint8(fn)

	return a, nil
}

func parseHexSegment(name, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "%s segment %q", name, s)
	}
	return v, nil
}

// String returns the canonical long form "dddd:bb:dd.f".
func (a Addr) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Device, a.Function)
}

// Short returns "bb:dd.f" for domain zero, the long form otherwise.
func (a Addr) Short() string {
	if a.Domain == 0 {
		return fmt.Sprintf("%02x:%02x.%x", a.Bus, a.Device, a.Function)
	}
	return a.String()
}

// Compare orders addresses by domain, bus, device, function.
func (a Addr) Compare(b Addr) int {
	switch {
	case a.Domain != b.Domain:
		return int(a.Domain) - int(b.Domain)
	case a.Bus != b.Bus:
		return int(a.Bus) - int(b.Bus)
	case a.Device != b.Device:
		return int(a.Device) - int(b.Device)
	default:
		return int(a.Function) - int(b.Function)
	}
}

// Less reports whether a orders before b.
func (a Addr) Less(b Addr) bool { return a.Compare(b) < 0 }
