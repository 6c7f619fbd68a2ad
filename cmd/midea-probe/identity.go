package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/midealan/discovery"
)

var identityVariantFlag int

var identityCmd = &cobra.Command{
	Use:   "identity <device-id>",
	Short: "Derive the cloud-lookup identifier for a device id",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentity,
}

func init() {
	identityCmd.Flags().IntVar(&identityVariantFlag, "variant", -1, "identity variant to print (0,1,2); default prints all three")
}

func runIdentity(cmd *cobra.Command, args []string) error {
	deviceID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid device id %q: %w", args[0], err)
	}

	variants := []discovery.IdentityVariant{
		discovery.IdentityVariantReversedBE8,
		discovery.IdentityVariantLow6BE,
		discovery.IdentityVariantLow6LE,
	}
	if identityVariantFlag >= 0 {
		variants = []discovery.IdentityVariant{discovery.IdentityVariant(identityVariantFlag)}
	}

	for _, v := range variants {
		id, err := discovery.UDPID(deviceID, v)
		if err != nil {
			return err
		}
		fmt.Printf("variant %d: %s\n", v, id)
	}
	return nil
}
