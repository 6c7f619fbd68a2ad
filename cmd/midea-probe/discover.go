package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/discovery"
	"github.com/muurk/midealan/internal/config"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast the discovery probe and list responding devices",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "how long to wait for responses")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout+time.Second)
	defer cancel()

	found, err := discovery.Discover(ctx, discovery.Options{Timeout: discoverTimeout})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if len(found) == 0 {
		fmt.Println("no devices responded")
		return nil
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ids := make([]uint64, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Printf("%-20s %-18s %-16s %-8s %s\n", "DEVICE ID", "TYPE", "ADDRESS", "PROTO", "NICKNAME")
	for _, id := range ids {
		desc := found[id]
		registry.UpdateDeviceLastSeen(id, desc.Address.String())

		nickname := ""
		if dev := registry.GetDevice(id); dev != nil {
			nickname = dev.Nickname
		}
		fmt.Printf("%-20d %-18s %-16s v%-7d %s\n",
			desc.ID, adapter.Name(desc.ApplianceType), desc.TCPAddr(), desc.ProtocolVersion, nickname)
	}

	return registry.Save()
}
