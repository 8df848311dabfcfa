package access

import (
	"bufio"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"

	"github.com/pciscan/pciscan/internal/pci"
)

// ProcfsRoot is the default legacy procfs PCI tree.
const ProcfsRoot = "/proc/bus/pci"

// LinuxProcfs reads devices from the legacy /proc/bus/pci tree: per-device
// binary config files under per-bus directories, plus the devices index
// file that carries IRQs, region addresses and sizes, and driver names.
type LinuxProcfs struct {
	fs   afero.Fs
	root string

	index map[pci.Addr]procIndexEntry
}

type procIndexEntry struct {
	irq       int
	resources []pci.Resource
	driver    string
}

// NewLinuxProcfs opens a procfs PCI tree rooted at root. The devices index
// is parsed up front, tolerantly; a missing index only costs enrichment.
func NewLinuxProcfs(fsys afero.Fs, root string) (*LinuxProcfs, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}
	m := &LinuxProcfs{fs: fsys, root: root}
	m.loadIndex()
	return m, nil
}

func (m *LinuxProcfs) Name() string { return "linux-procfs" }

// Scan walks the two level bus/device layout: directories named "bb" or
// "dddd:bb" holding "dd.f" config files.
func (m *LinuxProcfs) Scan() iter.Seq2[pci.Addr, error] {
	return func(yield func(pci.Addr, error) bool) {
		buses, err := afero.ReadDir(m.fs, m.root)
		if err != nil {
			yield(pci.Addr{}, errors.Wrapf(err, "read %s", m.root))
			return
		}
		for _, bus := range buses {
			if !bus.IsDir() {
				continue
			}
			domain, busNr, ok := parseProcBusDir(bus.Name())
			if !ok {
				continue
			}
			entries, err := afero.ReadDir(m.fs, filepath.Join(m.root, bus.Name()))
			if err != nil {
				if !yield(pci.Addr{}, errors.Wrapf(err, "read bus %s", bus.Name())) {
					return
				}
				continue
			}
			for _, e := range entries {
				dev, fn, ok := parseProcDevFile(e.Name())
				if !ok {
					continue
				}
				addr := pci.Addr{Domain: domain, Bus: busNr, Device: dev, Function: fn}
				if !yield(addr, nil) {
					return
				}
			}
		}
	}
}

func (m *LinuxProcfs) Devices() iter.Seq2[*pci.Device, error] {
	return func(yield func(*pci.Device, error) bool) {
		for addr, err := range m.Scan() {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			d, err := m.Device(addr)
			if !yield(d, err) {
				return
			}
		}
	}
}

func (m *LinuxProcfs) Device(addr pci.Addr) (*pci.Device, error) {
	path, err := m.deviceFile(addr)
	if err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config of %s", addr)
	}
	cs := pci.NewConfigSpace(raw)
	h, err := cs.Header()
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", addr)
	}

	d := pci.NewDevice(addr, cs, h)
	if e, ok := m.index[addr]; ok {
		d.IRQ = e.irq
		d.Resources = e.resources
		d.Driver = e.driver
	}
	return d, nil
}

// VitalProductData is not reachable through procfs.
func (m *LinuxProcfs) VitalProductData(addr pci.Addr) ([]byte, error) {
	return nil, errors.Wrap(ErrVPDUnsupported, addr.String())
}

// deviceFile locates the per-device config file. Domain zero buses sit
// directly under the root; other domains get a "dddd:bb" directory, which
// some kernels also use for domain zero.
func (m *LinuxProcfs) deviceFile(addr pci.Addr) (string, error) {
	name := fmt.Sprintf("%02x.%x", addr.Device, addr.Function)
	candidates := []string{
		filepath.Join(m.root, fmt.Sprintf("%04x:%02x", addr.Domain, addr.Bus), name),
	}
	if addr.Domain == 0 {
		candidates = append([]string{
			filepath.Join(m.root, fmt.Sprintf("%02x", addr.Bus), name),
		}, candidates...)
	}
	for _, p := range candidates {
		if _, err := m.fs.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Wrap(ErrNoSuchAddress, addr.String())
}

// loadIndex parses the devices file. The format is positional: 17 hex
// fields (bus and devfn packed in the first, vendor and device in the
// second, then the IRQ, six region base addresses, the ROM base, six
// region sizes and the ROM size), optionally followed by the driver name.
// The driver is located by position, never by failing a hex parse: names
// like e1000e or fb are themselves valid hex. Short or unparsable lines
// are skipped; the tree itself remains usable without the index.
func (m *LinuxProcfs) loadIndex() {
	f, err := m.fs.Open(filepath.Join(m.root, "devices"))
	if err != nil {
		klog.V(3).Infof("access: procfs index unavailable: %v", err)
		return
	}
	defer f.Close()

	m.index = make(map[pci.Addr]procIndexEntry)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		hexFields := fields
		if len(hexFields) > 17 {
			hexFields = hexFields[:17]
		}
		nums, ok := parseHexFields(hexFields)
		if !ok {
			continue
		}

		devfn := uint8(nums[0] & 0xFF)
		addr := pci.Addr{
			Bus:      uint8(nums[0] >> 8),
			Device:   devfn >> 3,
			Function: devfn & 0x7,
		}
		e := procIndexEntry{irq: int(nums[2])}
		e.resources = procResources(nums)
		if len(fields) > 17 {
			e.driver = fields[17]
		}
		m.index[addr] = e
	}
}

// parseHexFields parses every field as hex or reports the line unusable.
func parseHexFields(fields []string) ([]uint64, bool) {
	nums := make([]uint64, 0, len(fields))
	for _, s := range fields {
		n, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, false
		}
		nums = append(nums, n)
	}
	return nums, true
}

// procResources pairs the seven base address fields with the seven size
// fields that follow them. IO bases carry flag bits in the low two bits,
// memory bases in the low four.
func procResources(nums []uint64) []pci.Resource {
	if len(nums) < 17 {
		return nil
	}
	res := make([]pci.Resource, 7)
	for i := 0; i < 7; i++ {
		base, size := nums[3+i], nums[10+i]
		var start, flags uint64
		if base&0x1 != 0 {
			start, flags = base&^uint64(0x3), base&0x3
		} else {
			start, flags = base&^uint64(0xF), base&0xF
		}
		if size == 0 || start == 0 {
			// Unused slot, or a base with no size to pair it with.
			continue
		}
		res[i] = pci.Resource{Start: start, End: start + size - 1, Flags: flags}
	}
	return res
}

func parseProcBusDir(name string) (domain uint16, bus uint8, ok bool) {
	if d, b, found := strings.Cut(name, ":"); found {
		dn, err1 := strconv.ParseUint(d, 16, 16)
		bn, err2 := strconv.ParseUint(b, 16, 8)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return uint16(dn), uint8(bn), true
	}
	bn, err := strconv.ParseUint(name, 16, 8)
	if err != nil {
		return 0, 0, false
	}
	return 0, uint8(bn), true
}

func parseProcDevFile(name string) (dev, fn uint8, ok bool) {
	d, f, found := strings.Cut(name, ".")
	if !found {
		return 0, 0, false
	}
	dn, err1 := strconv.ParseUint(d, 16, 8)
	fn64, err2 := strconv.ParseUint(f, 16, 8)
	if err1 != nil || err2 != nil || dn > 0x1F || fn64 > 0x7 {
		return 0, 0, false
	}
	return uint8(dn), uint8(fn64), true
}
