package cliplugins

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zmesh/internal/storage/peerregistry"
)

type PeersCommand struct {
	cmd      *cobra.Command
	registry *peerregistry.Registry
}

func NewPeersCommand(registry *peerregistry.Registry) *PeersCommand {
	return &PeersCommand{registry: registry}
}

func (c *PeersCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "peers",
		Short: "List peers known from past scans",
	}
	c.cmd.Flags().StringP("whatami", "w", "", "Filter by role: client, peer or router")
	c.cmd.Flags().Duration("seen-within", 0, "Only peers seen within this duration")
	return c.cmd
}

func (c *PeersCommand) Execute(cmd *cobra.Command, args []string) error {
	if c.registry == nil {
		return fmt.Errorf("peer registry is not configured")
	}

	whatami, _ := cmd.Flags().GetString("whatami")
	seenWithin, _ := cmd.Flags().GetDuration("seen-within")

	filter := peerregistry.PeerFilter{}
	if whatami != "" {
		filter.WhatAmI = &whatami
	}
	if seenWithin > 0 {
		minLastSeen := time.Now().Add(-seenWithin)
		filter.MinLastSeen = &minLastSeen
	}

	peers, err := c.registry.ListPeers(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	for _, peer := range peers {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s last_seen=%s\n",
			peer.ZID, peer.WhatAmI, peer.LastSeen.Format(time.RFC3339))
		for _, locator := range peer.Locators {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", locator.Address, locator.Source)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d peer(s)\n", len(peers))
	return nil
}
