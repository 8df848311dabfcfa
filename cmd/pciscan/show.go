package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pciscan/pciscan/internal/color"
	"github.com/pciscan/pciscan/internal/names"
	"github.com/pciscan/pciscan/internal/pci"
	"github.com/pciscan/pciscan/internal/util"
)

var showVerbose bool

var showCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show one device in detail",
	Long: `Decodes and prints everything known about one device: the header,
base address registers, capability list and extended capabilities.

Example:
  pciscan show 0000:03:00.0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := addrArg(args)
		if err != nil {
			return err
		}
		m, err := openMethod()
		if err != nil {
			return err
		}
		d, err := m.Device(addr)
		if err != nil {
			return err
		}
		r := resolver()

		printDevice(d, r)
		printHeader(d)
		printBARs(d)
		printCapabilities(d)
		printExtCapabilities(d)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showVerbose, "verbose", "V", false,
		"also dump raw payload bytes of undecoded capabilities")
	rootCmd.AddCommand(showCmd)
}

func printDevice(d *pci.Device, r *names.Resolver) {
	c := d.Header.Common

	fmt.Println(color.Header("Device"))
	fmt.Printf("Address:      %s\n", color.Bold(d.Address.String()))
	fmt.Printf("Class:        %s [%06x]\n", r.Class(c.ClassCode), uint32(c.ClassCode))
	fmt.Printf("Vendor:       %s [%04x]\n", r.Vendor(c.VendorID), c.VendorID)
	fmt.Printf("Device:       %s [%04x]\n", r.Product(c.VendorID, c.DeviceID), c.DeviceID)
	fmt.Printf("Revision:     %02x\n", c.RevisionID)
	if d.Header.Kind == pci.HeaderKindNormal {
		n := d.Header.Normal
		if sub := r.Subsystem(c.VendorID, c.DeviceID, n.SubsystemVendorID, n.SubsystemID); sub != "" {
			fmt.Printf("Subsystem:    %s [%04x:%04x]\n", sub, n.SubsystemVendorID, n.SubsystemID)
		} else if n.SubsystemVendorID != 0 || n.SubsystemID != 0 {
			fmt.Printf("Subsystem:    %04x:%04x\n", n.SubsystemVendorID, n.SubsystemID)
		}
	}
	if d.Label != "" {
		fmt.Printf("Label:        %s\n", d.Label)
	}
	if d.PhySlot != "" {
		fmt.Printf("Slot:         %s\n", d.PhySlot)
	}
	if d.Driver != "" {
		fmt.Printf("Driver:       %s\n", d.Driver)
	}
	if len(d.KernelModules) > 0 {
		fmt.Printf("Modules:      %s\n", strings.Join(d.KernelModules, ", "))
	}
	if d.NumaNode >= 0 {
		fmt.Printf("NUMA node:    %d\n", d.NumaNode)
	}
	if d.IOMMUGroup >= 0 {
		fmt.Printf("IOMMU group:  %d\n", d.IOMMUGroup)
	}
	if d.IRQ >= 0 {
		fmt.Printf("IRQ:          %d\n", d.IRQ)
	}
	fmt.Println()
}

func printHeader(d *pci.Device) {
	h := d.Header
	c := h.Common

	fmt.Println(color.Header(fmt.Sprintf("Header (type %s)", h.Kind)))
	fmt.Printf("Command:      %04x  [io=%t mem=%t busmaster=%t intx-disabled=%t]\n",
		uint16(c.Command), c.Command.IOSpace(), c.Command.MemorySpace(),
		c.Command.BusMaster(), c.Command.InterruptDisable())
	fmt.Printf("Status:       %04x  [caps=%t 66mhz=%t master-abort=%t]\n",
		uint16(c.Status), c.Status.CapabilitiesList(), c.Status.Capable66MHz(),
		c.Status.ReceivedMasterAbort())
	if c.BIST.Capable() {
		fmt.Printf("BIST:         capable, completion %x\n", c.BIST.CompletionCode())
	}
	if h.Multifunction {
		fmt.Println("Multifunction device")
	}

	switch h.Kind {
	case pci.HeaderKindNormal:
		n := h.Normal
		if !n.InterruptPin.IsReserved() && n.InterruptPin != pci.PinUnused {
			fmt.Printf("Interrupt:    pin %s, line %d\n", n.InterruptPin, n.InterruptLine)
		}
		if n.ExpansionROM.Address != 0 {
			printROM(d, n.ExpansionROM)
		}
	case pci.HeaderKindBridge:
		b := h.Bridge
		fmt.Printf("Bus:          primary=%02x secondary=%02x subordinate=%02x\n",
			b.PrimaryBus, b.SecondaryBus, b.SubordinateBus)
		if b.ExpansionROM.Address != 0 {
			printROM(d, b.ExpansionROM)
		}
	case pci.HeaderKindCardbus:
		cb := h.Cardbus
		fmt.Printf("Bus:          pci=%02x cardbus=%02x subordinate=%02x\n",
			cb.PCIBus, cb.CardbusBus, cb.SubordinateBus)
		fmt.Printf("Socket base:  %08x\n", cb.SocketBase)
	}
	fmt.Println()
}

func printROM(d *pci.Device, rom pci.ExpansionROM) {
	state := "disabled"
	if rom.Enabled {
		state = "enabled"
	}
	if res, ok := d.ROMResource(); ok {
		fmt.Printf("ROM:          %08x [size=%d] (%s)\n", rom.Address, res.Size(), state)
		return
	}
	fmt.Printf("ROM:          %08x (%s)\n", rom.Address, state)
}

func printBARs(d *pci.Device) {
	bars := d.BaseAddresses()
	if len(bars) == 0 {
		return
	}
	fmt.Println(color.Header("Base address registers"))
	for _, b := range bars {
		fmt.Printf("BAR%d: %s\n", b.Index, b)
	}
	fmt.Println()
}

func printCapabilities(d *pci.Device) {
	fmt.Println(color.Header("Capabilities"))
	n := 0
	for cap, err := range d.Config.Capabilities() {
		if err != nil {
			fmt.Printf("  %s\n", color.Dim(fmt.Sprintf("(%v)", err)))
			continue
		}
		n++
		fmt.Printf("[%02x] %s\n", cap.Offset, color.Bold(cap.Name()))
		printCapabilityDetail(cap)
	}
	if n == 0 {
		fmt.Println("  none")
	}
	fmt.Println()
}

func printCapabilityDetail(cap pci.Capability) {
	switch cap.ID {
	case pci.CapIDPowerManagement:
		pm, err := cap.PowerManagement()
		if err != nil {
			fmt.Printf("     %s\n", color.Dim(err.Error()))
			return
		}
		fmt.Printf("     version %d, state D%d, PME enable=%t status=%t\n",
			pm.Version, pm.PowerState, pm.PMEEnable, pm.PMEStatus)
	case pci.CapIDMSI:
		msi, err := cap.MSI()
		if err != nil {
			fmt.Printf("     %s\n", color.Dim(err.Error()))
			return
		}
		fmt.Printf("     enabled=%t 64bit=%t maskable=%t address=%016x data=%04x\n",
			msi.Enabled, msi.Is64Bit, msi.PerVectorMasking, msi.Address, msi.Data)
	case pci.CapIDVendorSpecific:
		vs, err := cap.VendorSpecific()
		if err != nil {
			fmt.Printf("     %s\n", color.Dim(err.Error()))
			return
		}
		fmt.Printf("     %d bytes: %s\n", len(vs.Data), util.BytesToHex(vs.Data))
	default:
		if showVerbose && len(cap.Data) > 2 {
			fmt.Printf("     %s\n", color.Dim(util.BytesToHex(cap.Data[2:])))
		}
	}
}

func printExtCapabilities(d *pci.Device) {
	if d.Config.Len() <= pci.LegacySize {
		return
	}
	fmt.Println(color.Header("Extended capabilities"))
	n := 0
	for cap, err := range d.Config.ExtendedCapabilities() {
		if err != nil {
			fmt.Printf("  %s\n", color.Dim(fmt.Sprintf("(%v)", err)))
			continue
		}
		n++
		fmt.Printf("[%03x] %s v%d\n", cap.Offset, color.Bold(cap.Name()), cap.Version)
		if showVerbose && len(cap.Data) > 4 {
			fmt.Printf("      %s\n", color.Dim(util.BytesToHex(cap.Data[4:])))
		}
	}
	if n == 0 {
		fmt.Println("  none")
	}
	fmt.Println()
}
