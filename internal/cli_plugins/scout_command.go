package cliplugins

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zmesh/internal/scout"
	"zmesh/internal/storage/hellocache"
	"zmesh/internal/storage/peerregistry"
	"zmesh/internal/transport"
)

type ScoutCommand struct {
	cmd        *cobra.Command
	controller *scout.Controller
	cache      *hellocache.Cache
	registry   *peerregistry.Registry
}

func NewScoutCommand(
	controller *scout.Controller,
	cache *hellocache.Cache,
	registry *peerregistry.Registry,
) *ScoutCommand {
	return &ScoutCommand{
		controller: controller,
		cache:      cache,
		registry:   registry,
	}
}

func (c *ScoutCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "scout",
		Short: "Discover mesh participants on the local network",
		Long:  "Runs one bounded discovery scan and prints every hello as it arrives.",
	}
	c.cmd.Flags().StringP("what", "w", "both", "Roles to scout for: peer, router or both")
	c.cmd.RegisterFlagCompletionFunc("what", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"peer", "router", "both"}, cobra.ShellCompDirectiveNoFileComp
	})
	return c.cmd
}

func (c *ScoutCommand) Execute(cmd *cobra.Command, args []string) error {
	what, err := cmd.Flags().GetString("what")
	if err != nil {
		return fmt.Errorf("flag --what is required")
	}

	filter, err := scout.ParseFilter(what)
	if err != nil {
		return fmt.Errorf("unknown --what value %q, want peer, router or both", what)
	}

	records, started := c.controller.Start(filter)
	if !started {
		fmt.Fprintln(cmd.OutOrStdout(), "a scan is already in progress")
		return nil
	}

	count := 0
	for record := range records {
		count++
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
			record.ReceivedAt.Format(time.RFC3339), record.Payload)
		c.persist(record)
	}

	if err := c.controller.Err(); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scan finished, %d hello(s)\n", count)
	return nil
}

// persist mirrors a discovered hello into the cache and the registry.
// Persistence failures do not abort the scan.
func (c *ScoutCommand) persist(record scout.Record) {
	hello, err := transport.ParseHello(record.Payload)
	if err != nil {
		return
	}

	if c.cache != nil {
		c.cache.Put(&hellocache.CachedHello{
			ZID:      hello.ZID,
			WhatAmI:  hello.WhatAmI,
			Locators: hello.Locators,
			LastSeen: record.ReceivedAt,
		})
	}

	if c.registry != nil {
		locators := make([]peerregistry.Locator, 0, len(hello.Locators))
		for _, address := range hello.Locators {
			locators = append(locators, peerregistry.Locator{
				Address: address,
				Source:  peerregistry.SourceScout,
			})
		}
		c.registry.SavePeer(c.cmd.Context(), peerregistry.Peer{
			ZID:       hello.ZID,
			WhatAmI:   hello.WhatAmI,
			FirstSeen: record.ReceivedAt,
			LastSeen:  record.ReceivedAt,
			Locators:  locators,
		})
	}
}
