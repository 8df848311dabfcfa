package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configFull bool

var configCmd = &cobra.Command{
	Use:   "config <address>",
	Short: "Hex dump a device's configuration space",
	Long: `Prints the raw configuration space of one device as a hex dump.
By default only the 64 byte header is shown; --full dumps the whole
readable region.

Example:
  pciscan config --full 0000:03:00.0`,
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

		n := 64
		if configFull {
			n = d.Config.Len()
		}
		fmt.Print(d.Config.HexDump(n))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configFull, "full", false,
		"dump the entire readable region, not just the header")
	rootCmd.AddCommand(configCmd)
}
