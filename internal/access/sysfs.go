package access

import (
	"bufio"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/pciscan/pciscan/internal/pci"
)

// SysfsRoot is the default sysfs PCI bus tree.
const SysfsRoot = "/sys/bus/pci"

// LinuxSysfs reads devices from the kernel's sysfs PCI tree. Beyond raw
// configuration space it enriches each device with slot labels, NUMA node,
// IOMMU group, IRQ, resource ranges, the bound driver and the kernel
// modules whose aliases match the device.
type LinuxSysfs struct {
	fs   afero.Fs
	root string

	slots   map[string]string // "dddd:bb:dd" -> physical slot name
	aliases []moduleAlias
}

type moduleAlias struct {
	pattern string // "pci:v...d...sv...sd...bc...sc...i*"
	module  string
}

// NewLinuxSysfs opens a sysfs PCI tree rooted at root. A missing root is
// an error so that Probe can fall through to the next method. Slot and
// module alias tables are loaded best-effort.
func NewLinuxSysfs(fsys afero.Fs, root string) (*LinuxSysfs, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}
	m := &LinuxSysfs{fs: fsys, root: root}
	m.loadSlots()
	m.loadModuleAliases()
	return m, nil
}

func (m *LinuxSysfs) Name() string { return "linux-sysfs" }

// Scan lists the entries of devices/ lazily, in directory order, reading
// names in small chunks so an abandoned scan never lists the whole bus.
func (m *LinuxSysfs) Scan() iter.Seq2[pci.Addr, error] {
	return func(yield func(pci.Addr, error) bool) {
		dir := filepath.Join(m.root, "devices")
		f, err := m.fs.Open(dir)
		if err != nil {
			yield(pci.Addr{}, errors.Wrapf(err, "open %s", dir))
			return
		}
		defer f.Close()

		for {
			names, err := f.Readdirnames(64)
			for _, name := range names {
				addr, perr := pci.ParseAddr(name)
				if perr != nil {
					if !yield(pci.Addr{}, errors.Wrapf(perr, "entry %q", name)) {
						return
					}
					continue
				}
				if !yield(addr, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(pci.Addr{}, errors.Wrapf(err, "read %s", dir))
				return
			}
		}
	}
}

func (m *LinuxSysfs) Devices() iter.Seq2[*pci.Device, error] {
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

// Device reads one device directory: the config file plus every
// enrichment attribute that happens to be present.
func (m *LinuxSysfs) Device(addr pci.Addr) (*pci.Device, error) {
	dir := filepath.Join(m.root, "devices", addr.String())
	if _, err := m.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNoSuchAddress, addr.String())
		}
		return nil, errors.Wrapf(err, "stat %s", dir)
	}

	raw, err := afero.ReadFile(m.fs, filepath.Join(dir, "config"))
	if err != nil {
		return nil, errors.Wrapf(err, "read config of %s", addr)
	}
	cs := pci.NewConfigSpace(raw)
	h, err := cs.Header()
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", addr)
	}

	d := pci.NewDevice(addr, cs, h)
	m.enrich(d, dir)
	return d, nil
}

// VitalProductData reads the vpd attribute. Devices without VPD have no
// such file.
func (m *LinuxSysfs) VitalProductData(addr pci.Addr) ([]byte, error) {
	path := filepath.Join(m.root, "devices", addr.String(), "vpd")
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrVPDUnsupported, addr.String())
		}
		return nil, errors.Wrapf(err, "read vpd of %s", addr)
	}
	return data, nil
}

// enrich fills the optional attribute fields. Every attribute is
// independent; a missing or malformed one leaves its field at the unknown
// value.
func (m *LinuxSysfs) enrich(d *pci.Device, dir string) {
	if s, ok := m.readString(filepath.Join(dir, "label")); ok {
		d.Label = s
	}
	// Slot addresses carry no function part.
	full := d.Address.String()
	if slot, ok := m.slots[full[:strings.LastIndexByte(full, '.')]]; ok {
		d.PhySlot = slot
	}
	if n, ok := m.readInt(filepath.Join(dir, "numa_node")); ok {
		d.NumaNode = n
	}
	if n, ok := m.readInt(filepath.Join(dir, "irq")); ok {
		d.IRQ = n
	}
	if target, ok := m.readLink(filepath.Join(dir, "iommu_group")); ok {
		if n, err := strconv.Atoi(filepath.Base(target)); err == nil {
			d.IOMMUGroup = n
		}
	}
	if target, ok := m.readLink(filepath.Join(dir, "driver")); ok {
		d.Driver = filepath.Base(target)
	}
	if s, ok := m.readString(filepath.Join(dir, "resource")); ok {
		d.Resources = pci.ParseResourceLines(strings.Split(s, "\n"))
	}
	if s, ok := m.readString(filepath.Join(dir, "modalias")); ok {
		d.KernelModules = m.matchModules(s)
	}
}

func (m *LinuxSysfs) readString(path string) (string, bool) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (m *LinuxSysfs) readInt(path string) (int, bool) {
	s, ok := m.readString(path)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// readLink resolves a symlink attribute. Filesystems that cannot express
// symlinks store the target as plain file content instead.
func (m *LinuxSysfs) readLink(path string) (string, bool) {
	if lr, ok := m.fs.(afero.LinkReader); ok {
		if target, err := lr.ReadlinkIfPossible(path); err == nil {
			return target, true
		}
	}
	return m.readString(path)
}

// loadSlots reads slots/<name>/address files into a lookup table keyed by
// the function-less device address.
func (m *LinuxSysfs) loadSlots() {
	dir := filepath.Join(m.root, "slots")
	names, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return
	}
	m.slots = make(map[string]string, len(names))
	for _, fi := range names {
		addr, ok := m.readString(filepath.Join(dir, fi.Name(), "address"))
		if !ok {
			continue
		}
		m.slots[addr] = fi.Name()
	}
}

// loadModuleAliases reads the running kernel's modules.alias table so
// devices can be matched to the modules that claim them.
func (m *LinuxSysfs) loadModuleAliases() {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		klog.V(3).Infof("access: uname: %v", err)
		return
	}
	release := unix.ByteSliceToString(uts.Release[:])
	path := filepath.Join("/lib/modules", release, "modules.alias")
	f, err := m.fs.Open(path)
	if err != nil {
		klog.V(3).Infof("access: %s unavailable: %v", path, err)
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 || fields[0] != "alias" || !strings.HasPrefix(fields[1], "pci:") {
			continue
		}
		m.aliases = append(m.aliases, moduleAlias{pattern: fields[1], module: fields[2]})
	}
}

// matchModules returns the de-duplicated modules whose alias patterns
// match the device's modalias string.
func (m *LinuxSysfs) matchModules(modalias string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range m.aliases {
		ok, err := filepath.Match(a.pattern, modalias)
		if err != nil || !ok || seen[a.module] {
			continue
		}
		seen[a.module] = true
		out = append(out, a.module)
	}
	return out
}
