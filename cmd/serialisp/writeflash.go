package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-serialisp/bootloader"
	"github.com/moffa90/go-serialisp/image"
)

var (
	flagVerify     bool
	flagEraseFirst bool
)

var writeFlashCmd = &cobra.Command{
	Use:   "write-flash <region> <in-file>",
	Short: "Write a firmware file to a flash region",
	Long: `Write a firmware file to a flash region. The region is START:LENGTH or a
partition name; a bare START takes its length from the image. The image
length must match the region length exactly. Files ending in
.hex/.ihx/.ihex are parsed as Intel HEX; anything else is raw binary.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		region, err := parseRegion(args[0])
		if err != nil {
			return err
		}

		img, err := image.Load(args[1])
		if err != nil {
			return err
		}
		if region.Length == 0 {
			region.Length = uint32(img.Len())
		}
		log.WithFields(logrus.Fields{
			"file":   args[1],
			"bytes":  img.Len(),
			"crc16":  fmt.Sprintf("0x%04X", img.CRC16()),
			"region": region.String(),
		}).Info("loaded firmware image")

		sess, port, err := openSession(cmd.Context(),
			bootloader.WithVerify(flagVerify),
			bootloader.WithEraseBeforeWrite(flagEraseFirst),
		)
		if err != nil {
			return err
		}
		defer port.Close()

		return sess.WriteFlash(cmd.Context(), region, img)
	},
}

func init() {
	writeFlashCmd.Flags().BoolVar(&flagVerify, "verify", true, "read written data back and compare")
	writeFlashCmd.Flags().BoolVar(&flagEraseFirst, "erase-first", false, "explicitly erase the region before writing")
	rootCmd.AddCommand(writeFlashCmd)
}
