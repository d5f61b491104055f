package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var readFlashCmd = &cobra.Command{
	Use:   "read-flash <region> <out-file>",
	Short: "Read a flash region into a file",
	Long: `Read a flash region from the device into a file. The region is
START:LENGTH (hex or decimal), a partition name, or "all" for the whole
flash. Files ending in .hex/.ihx/.ihex are written as Intel HEX carrying the
region start address; anything else is raw binary.`,
	Args: cobra.ExactArgs(2),
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

		img, err := sess.ReadFlash(cmd.Context(), region)
		if err != nil {
			return err
		}

		if err := img.Save(args[1]); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"file":  args[1],
			"bytes": img.Len(),
			"crc16": fmt.Sprintf("0x%04X", img.CRC16()),
		}).Info("flash read saved")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readFlashCmd)
}
