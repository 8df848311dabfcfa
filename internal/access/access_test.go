package access

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/pciscan/pciscan/internal/pci"
)

func TestProbePrefersSysfs(t *testing.T) {
	fs := newSysfsFixture(t)
	require.Equal(t, "linux-sysfs", Probe(fs).Name())
}

func TestProbeFallsBackToProcfs(t *testing.T) {
	fs := newProcfsFixture(t)
	require.Equal(t, "linux-procfs", Probe(fs).Name())
}

func TestProbeFallsBackToVoid(t *testing.T) {
	require.Equal(t, "void", Probe(afero.NewMemMapFs()).Name())
}

func TestVoid(t *testing.T) {
	var m Method = Void{}

	_, err := m.Device(pci.Addr{})
	require.ErrorIs(t, err, ErrNoSuchAddress)

	for range m.Scan() {
		t.Fatal("void scan yielded an address")
	}
	for range m.Devices() {
		t.Fatal("void scan yielded a device")
	}

	_, err = m.VitalProductData(pci.Addr{})
	require.ErrorIs(t, err, ErrVPDUnsupported)
}

// Scan is the address projection of Devices, whichever method serves them.
func TestScanMatchesDevices(t *testing.T) {
	methods := []Method{
		NewDump(sampleDump),
		mustSysfs(t),
	}
	for _, m := range methods {
		t.Run(m.Name(), func(t *testing.T) {
			var scanned, decoded []pci.Addr
			for addr, err := range m.Scan() {
				require.NoError(t, err)
				scanned = append(scanned, addr)
			}
			for d, err := range m.Devices() {
				require.NoError(t, err)
				decoded = append(decoded, d.Address)
			}
			require.Equal(t, scanned, decoded)
		})
	}
}

// Abandoning a sequence mid-way must not panic or keep yielding.
func TestSequenceAbandon(t *testing.T) {
	m := NewDump(sampleDump)
	n := 0
	for _, err := range m.Devices() {
		require.NoError(t, err)
		n++
		break
	}
	require.Equal(t, 1, n)
}

func mustSysfs(t *testing.T) *LinuxSysfs {
	t.Helper()
	m, err := NewLinuxSysfs(newSysfsFixture(t), SysfsRoot)
	require.NoError(t, err)
	return m
}
