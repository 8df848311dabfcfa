package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pciscan/pciscan/internal/util"
)

var vpdCmd = &cobra.Command{
	Use:   "vpd <address>",
	Short: "Read a device's vital product data",
	Long: `Reads the raw vital product data block of one device. The
identifier string is decoded when present; the rest is printed as hex.`,
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
		data, err := m.VitalProductData(addr)
		if err != nil {
			return err
		}

		// Leading large resource tag 0x82 carries the identifier string.
		if len(data) >= 3 && data[0] == 0x82 {
			n := int(data[1]) | int(data[2])<<8
			if 3+n <= len(data) {
				fmt.Printf("Identifier: %s\n", data[3:3+n])
			}
		}
		fmt.Printf("%d bytes: %s\n", len(data), util.BytesToHex(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vpdCmd)
}
