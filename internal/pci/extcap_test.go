package pci

import (
	"encoding/binary"
	"errors"
	"testing"
)

func extHeader(id uint16, version uint8, next uint16) uint32 {
	return uint32(id) | uint32(version&0xF)<<16 | uint32(next&0xFFC)<<20
}

func collectExtCaps(t *testing.T, cs *ConfigSpace) ([]ExtCapability, []error) {
	t.Helper()
	var caps []ExtCapability
	var errs []error
	for c, err := range cs.ExtendedCapabilities() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		caps = append(caps, c)
	}
	return caps, errs
}

func TestExtendedCapabilitiesChain(t *testing.T) {
	buf := buildConfig(ExtendedSize, 0x00)
	binary.LittleEndian.PutUint32(buf[0x100:], extHeader(ExtCapIDAER, 2, 0x140))
	binary.LittleEndian.PutUint32(buf[0x140:], extHeader(ExtCapIDSRIOV, 1, 0x180))
	binary.LittleEndian.PutUint32(buf[0x180:], extHeader(ExtCapIDLTR, 1, 0))

	caps, errs := collectExtCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(caps) != 3 {
		t.Fatalf("got %d extended capabilities, want 3", len(caps))
	}

	if caps[0].ID != ExtCapIDAER || caps[0].Version != 2 || caps[0].Offset != 0x100 {
		t.Errorf("cap 0 = %+v", caps[0])
	}
	if caps[0].Name() != "Advanced Error Reporting" {
		t.Errorf("cap 0 name = %q", caps[0].Name())
	}
	if caps[1].ID != ExtCapIDSRIOV || caps[2].ID != ExtCapIDLTR {
		t.Errorf("chain order = %#x, %#x", caps[1].ID, caps[2].ID)
	}
	if len(caps[0].Data) != 0x40 {
		t.Errorf("cap 0 extent = %d bytes, want 0x40 (up to the next node)", len(caps[0].Data))
	}
}

func TestExtendedCapabilitiesEmptySpace(t *testing.T) {
	// An all-zero first header means "no extended capabilities", as opposed
	// to a terminated chain.
	buf := buildConfig(ExtendedSize, 0x00)
	caps, errs := collectExtCaps(t, NewConfigSpace(buf))
	if len(caps) != 0 || len(errs) != 0 {
		t.Fatalf("empty space yielded caps=%v errs=%v", caps, errs)
	}

	// All-ones reads (typical for powered-down functions) mean the same.
	for i := 0x100; i < 0x104; i++ {
		buf[i] = 0xFF
	}
	caps, errs = collectExtCaps(t, NewConfigSpace(buf))
	if len(caps) != 0 || len(errs) != 0 {
		t.Fatalf("all-ones header yielded caps=%v errs=%v", caps, errs)
	}
}

func TestExtendedCapabilitiesLegacyBuffer(t *testing.T) {
	// A 256-byte buffer has no extended region at all.
	buf := buildConfig(LegacySize, 0x00)
	caps, errs := collectExtCaps(t, NewConfigSpace(buf))
	if len(caps) != 0 || len(errs) != 0 {
		t.Fatalf("legacy buffer yielded caps=%v errs=%v", caps, errs)
	}
}

func TestExtendedCapabilitiesTruncatedNode(t *testing.T) {
	buf := buildConfig(ExtendedSize, 0x00)
	binary.LittleEndian.PutUint32(buf[0x100:], extHeader(ExtCapIDAER, 1, 0xFFC))
	// The node at 0xFFC has only 4 readable bytes left.
	binary.LittleEndian.PutUint32(buf[0xFFC:], extHeader(ExtCapIDLTR, 1, 0))

	caps, errs := collectExtCaps(t, NewConfigSpace(buf))
	if len(caps) != 1 || caps[0].ID != ExtCapIDAER {
		t.Fatalf("caps = %v", caps)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrExtCapabilityTruncated) {
		t.Fatalf("errs = %v, want ErrExtCapabilityTruncated for the tail node", errs)
	}
}

func TestExtendedCapabilitiesCycleGuard(t *testing.T) {
	buf := buildConfig(ExtendedSize, 0x00)
	binary.LittleEndian.PutUint32(buf[0x100:], extHeader(ExtCapIDAER, 1, 0x140))
	binary.LittleEndian.PutUint32(buf[0x140:], extHeader(ExtCapIDLTR, 1, 0x100)) // cycle

	caps, errs := collectExtCaps(t, NewConfigSpace(buf))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(caps) != 2 {
		t.Fatalf("cyclic chain yielded %d nodes, want 2 then stop", len(caps))
	}
}
