package main

import (
	"github.com/spf13/cobra"
)

var eraseFlashCmd = &cobra.Command{
	Use:   "erase-flash <region>",
	Short: "Erase a flash region",
	Long: `Erase a flash region on device families that support standalone erase.
The region is START:LENGTH, a partition name, or "all" for the whole flash.
Lengths are rounded up to the flash sector size by the device.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		region, err := parseRegion(args[0])
		if err != nil {
			return err
		}

		sess, port, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer port.Close()

		region, err = resolveLength(region, sess.Device())
		if err != nil {
			return err
		}

		return sess.EraseFlash(cmd.Context(), region)
	},
}

func init() {
	rootCmd.AddCommand(eraseFlashCmd)
}
