package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/pciscan/pciscan/internal/access"
	"github.com/pciscan/pciscan/internal/color"
	"github.com/pciscan/pciscan/internal/names"
	"github.com/pciscan/pciscan/internal/pci"
)

var (
	dumpFile string
	numeric  bool
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "pciscan",
	Short: "PCI device discovery and configuration space decoder",
	Long: `Pciscan enumerates PCI/PCIe devices and decodes their configuration
space: headers, base address registers, capability lists and extended
capabilities.

Devices are read from sysfs when available, from the legacy procfs tree
otherwise, or from a captured hex dump given with --file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Disable()
		}
	},
}

func init() {
	kf := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(kf)
	rootCmd.PersistentFlags().AddGoFlagSet(kf)

	rootCmd.PersistentFlags().StringVarP(&dumpFile, "file", "F", "",
		"read devices from a hex dump file instead of the live system")
	rootCmd.PersistentFlags().BoolVarP(&numeric, "numeric", "n", false,
		"show numeric IDs instead of names")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
}

// openMethod picks the device source: the dump file when one was given,
// otherwise the best live tree on this host.
func openMethod() (access.Method, error) {
	fsys := afero.NewOsFs()
	if dumpFile != "" {
		return access.NewDumpFile(fsys, dumpFile)
	}
	return access.Probe(fsys), nil
}

// addrArg parses the single device address argument commands take.
func addrArg(args []string) (pci.Addr, error) {
	addr, err := pci.ParseAddr(args[0])
	if err != nil {
		return pci.Addr{}, fmt.Errorf("invalid device address %q: %w", args[0], err)
	}
	return addr, nil
}

func resolver() *names.Resolver {
	return names.NewResolver(numeric)
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
