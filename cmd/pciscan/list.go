package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pciscan/pciscan/internal/color"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List PCI devices",
	Long:  "Enumerates all PCI devices with one summary line each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMethod()
		if err != nil {
			return err
		}
		r := resolver()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tCLASS\tDEVICE\tDRIVER")
		fmt.Fprintln(w, "-------\t-----\t------\t------")

		n := 0
		for d, err := range m.Devices() {
			if err != nil {
				fmt.Fprintln(os.Stderr, color.Dim(fmt.Sprintf("skipped: %v", err)))
				continue
			}
			c := d.Header.Common
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				d.Address.Short(),
				r.Class(c.ClassCode),
				r.Device(c.VendorID, c.DeviceID),
				d.Driver,
			)
			n++
		}
		w.Flush()

		fmt.Printf("\nTotal: %d devices (via %s)\n", n, m.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
