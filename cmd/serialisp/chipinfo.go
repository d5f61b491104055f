package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var chipInfoCmd = &cobra.Command{
	Use:   "chip-info",
	Short: "Identify the connected chip",
	Long:  `Sync with the bootloader, read the chip signature and print what was found.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, port, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer port.Close()

		dev, err := sess.ChipInfo()
		if err != nil {
			return err
		}
		fmt.Printf("Chip:       %s\n", dev.Name)
		fmt.Printf("Family:     %s\n", dev.Family)
		fmt.Printf("Signature:  0x%08X\n", sess.Signature())
		if dev.FlashSize > 0 {
			fmt.Printf("Flash size: %d KiB\n", dev.FlashSize/1024)
		} else {
			fmt.Printf("Flash size: unknown\n")
		}
		if dev.PageSize > 0 {
			fmt.Printf("Page size:  %d bytes\n", dev.PageSize)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chipInfoCmd)
}
