package pci

import (
	"encoding/binary"
	"errors"
	"testing"
)

// capConfig builds a legacy-size buffer with the capability list bit set
// and the capability pointer aimed at start.
func capConfig(start uint8) []byte {
	buf := buildConfig(LegacySize, 0x00)
	buf[0x34] = start
	return buf
}

func collectCaps(t *testing.T, cs *ConfigSpace) ([]Capability, []error) {
	t.Helper()
	var caps []Capability
	var errs []error
	for c, err := range cs.Capabilities() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		caps = append(caps, c)
	}
	return caps, errs
}

func TestCapabilitiesTermination(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDPowerManagement
	buf[0x41] = 0x50
	buf[0x50] = CapIDMSI
	buf[0x51] = 0x60
	buf[0x60] = CapIDPCIExpress
	buf[0x61] = 0x00 // end of chain

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(caps) != 3 {
		t.Fatalf("got %d capabilities, want 3", len(caps))
	}

	wantIDs := []uint8{CapIDPowerManagement, CapIDMSI, CapIDPCIExpress}
	wantOffsets := []uint8{0x40, 0x50, 0x60}
	for i := range caps {
		if caps[i].ID != wantIDs[i] || caps[i].Offset != wantOffsets[i] {
			t.Errorf("cap %d = id %#02x at %#02x, want id %#02x at %#02x",
				i, caps[i].ID, caps[i].Offset, wantIDs[i], wantOffsets[i])
		}
	}
}

func TestCapabilitiesReservedID(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = 0x7E // not a known ID
	buf[0x41] = 0x50
	buf[0x50] = CapIDMSI
	buf[0x51] = 0x00

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(caps) != 2 {
		t.Fatalf("got %d capabilities, want 2 (walker must advance past unknown IDs)", len(caps))
	}
	if caps[0].Name() != "Reserved" {
		t.Errorf("unknown ID name = %q, want Reserved", caps[0].Name())
	}
	if caps[1].ID != CapIDMSI {
		t.Errorf("second cap = %#02x, want MSI", caps[1].ID)
	}
}

func TestCapabilitiesDenied(t *testing.T) {
	buf := buildConfig(LegacySize, 0x00)
	binary.LittleEndian.PutUint16(buf[0x06:], 0x0000) // capability list bit clear
	buf[0x34] = 0x40

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(caps) != 0 {
		t.Fatalf("expected no capabilities, got %d", len(caps))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrCapabilityListUnavailable) {
		t.Fatalf("errs = %v, want single ErrCapabilityListUnavailable", errs)
	}
}

func TestCapabilitiesCycleGuard(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDPowerManagement
	buf[0x41] = 0x50
	buf[0x50] = CapIDMSI
	buf[0x51] = 0x40 // points back at the first node

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(caps) != 2 {
		t.Fatalf("cyclic chain yielded %d nodes, want 2 then stop", len(caps))
	}
}

func TestCapabilitiesOutOfRangePointer(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDMSI
	buf[0x41] = 0x20 // below the device dependent region

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(caps) != 1 {
		t.Fatalf("got %d capabilities before the bad pointer, want 1", len(caps))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrCapabilityOutOfRange) {
		t.Fatalf("errs = %v, want ErrCapabilityOutOfRange", errs)
	}
}

func TestCapabilityPartialConsumption(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDPowerManagement
	buf[0x41] = 0x50
	buf[0x50] = CapIDMSI
	buf[0x51] = 0x00

	var got int
	for range NewConfigSpace(buf).Capabilities() {
		got++
		break // abandon mid-walk
	}
	if got != 1 {
		t.Fatalf("consumed %d, want 1", got)
	}
}

func TestPowerManagementDecode(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDPowerManagement
	buf[0x41] = 0x00
	// PMC: version 3, D1+D2, PME from D0-D3hot
	binary.LittleEndian.PutUint16(buf[0x42:], 0x7E03)
	// PMCSR: state D3hot, PME enabled, PME status
	binary.LittleEndian.PutUint16(buf[0x44:], 0x8103)

	caps, errs := collectCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 || len(caps) != 1 {
		t.Fatalf("caps = %v errs = %v", caps, errs)
	}

	pm, err := caps[0].PowerManagement()
	if err != nil {
		t.Fatalf("PowerManagement(): %v", err)
	}
	if pm.Version != 3 {
		t.Errorf("version = %d", pm.Version)
	}
	if !pm.D1Support || !pm.D2Support {
		t.Errorf("D1/D2 = %v/%v", pm.D1Support, pm.D2Support)
	}
	if pm.PMESupport != 0x0F {
		t.Errorf("PME support = %#02x", pm.PMESupport)
	}
	if pm.PowerState != 3 || !pm.PMEEnable || !pm.PMEStatus {
		t.Errorf("PMCSR decode = %+v", pm)
	}

	if _, err := caps[0].MSI(); !errors.Is(err, ErrCapabilityWrongID) {
		t.Errorf("MSI() on PM node: err = %v, want ErrCapabilityWrongID", err)
	}
}

func TestMSIDecode(t *testing.T) {
	t.Run("32-bit", func(t *testing.T) {
		buf := capConfig(0x50)
		buf[0x50] = CapIDMSI
		buf[0x51] = 0x00
		binary.LittleEndian.PutUint16(buf[0x52:], 0x0001) // enabled
		binary.LittleEndian.PutUint32(buf[0x54:], 0xfee00000)
		binary.LittleEndian.PutUint16(buf[0x58:], 0x4041)

		caps, _ := collectCaps(t, NewConfigSpace(buf))
		m, err := caps[0].MSI()
		if err != nil {
			t.Fatalf("MSI(): %v", err)
		}
		if !m.Enabled || m.Is64Bit || m.Address != 0xfee00000 || m.Data != 0x4041 {
			t.Errorf("msi = %+v", m)
		}
	})

	t.Run("64-bit with masking", func(t *testing.T) {
		buf := capConfig(0x50)
		buf[0x50] = CapIDMSI
		buf[0x51] = 0x00
		binary.LittleEndian.PutUint16(buf[0x52:], 0x0186) // 64-bit, masking, 8 vectors capable
		binary.LittleEndian.PutUint32(buf[0x54:], 0xfee00000)
		binary.LittleEndian.PutUint32(buf[0x58:], 0x00000001)
		binary.LittleEndian.PutUint16(buf[0x5C:], 0x4041)
		binary.LittleEndian.PutUint32(buf[0x60:], 0x000000ff) // mask
		binary.LittleEndian.PutUint32(buf[0x64:], 0x00000003) // pending

		caps, _ := collectCaps(t, NewConfigSpace(buf))
		m, err := caps[0].MSI()
		if err != nil {
			t.Fatalf("MSI(): %v", err)
		}
		if !m.Is64Bit || !m.PerVectorMasking {
			t.Fatalf("control decode = %+v", m)
		}
		if m.MultipleCapable != 3 {
			t.Errorf("multiple capable = %d, want 3 (log2 of 8)", m.MultipleCapable)
		}
		if m.Address != 0x1_fee0_0000 {
			t.Errorf("address = %#x", m.Address)
		}
		if m.MaskBits != 0xff || m.PendingBits != 0x3 {
			t.Errorf("mask/pending = %#x/%#x", m.MaskBits, m.PendingBits)
		}
	})
}

func TestVendorSpecificDecode(t *testing.T) {
	buf := capConfig(0x40)
	buf[0x40] = CapIDVendorSpecific
	buf[0x41] = 0x00
	buf[0x42] = 0x06 // whole node length
	copy(buf[0x43:], []byte{0xDE, 0xAD, 0xBE})

	caps, _ := collectCaps(t, NewConfigSpace(buf))
	vs, err := caps[0].VendorSpecific()
	if err != nil {
		t.Fatalf("VendorSpecific(): %v", err)
	}
	if vs.Length != 6 || len(vs.Data) != 3 {
		t.Fatalf("vs = %+v", vs)
	}
	if vs.Data[0] != 0xDE || vs.Data[2] != 0xBE {
		t.Errorf("payload = %x", vs.Data)
	}
}
