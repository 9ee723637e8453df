package cliplugins

import (
	"fmt"

	"github.com/spf13/cobra"

	"zmesh/internal/session"
)

type OpenCommand struct {
	cmd     *cobra.Command
	manager *session.Manager
}

func NewOpenCommand(manager *session.Manager) *OpenCommand {
	return &OpenCommand{manager: manager}
}

func (c *OpenCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "open",
		Short: "Open a session with the mesh",
		Long:  "Builds a session config from the flags and opens a transport session. An already open session is closed first.",
	}
	c.cmd.Flags().StringP("mode", "m", "peer", "Session mode: client, peer or router")
	c.cmd.Flags().StringSliceP("endpoint", "e", nil, "Connect endpoint locator, e.g. tcp/localhost:7447 (repeatable)")
	c.cmd.Flags().Bool("multicast", true, "Enable multicast scouting")
	c.cmd.Flags().Bool("gossip", true, "Enable gossip scouting")
	c.cmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"client", "peer", "router"}, cobra.ShellCompDirectiveNoFileComp
	})
	return c.cmd
}

func (c *OpenCommand) Execute(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	endpoints, _ := cmd.Flags().GetStringSlice("endpoint")
	multicast, _ := cmd.Flags().GetBool("multicast")
	gossip, _ := cmd.Flags().GetBool("gossip")

	cfg, err := session.NewBuilder().
		SetMode(session.Mode(mode)).
		SetEndpoints(endpoints).
		SetMulticastScouting(multicast).
		SetGossipScouting(gossip).
		Build()
	if err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	started, err := c.manager.Open(cmd.Context(), cfg)
	if !started {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "an open is already in progress")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	status := c.manager.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "session open, id=%s\n", status.SessionID)
	return nil
}

type CloseCommand struct {
	cmd     *cobra.Command
	manager *session.Manager
}

func NewCloseCommand(manager *session.Manager) *CloseCommand {
	return &CloseCommand{manager: manager}
}

func (c *CloseCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "close",
		Short: "Close the current session",
		Long:  "Releases the owned session. Closing when nothing is open is a no-op.",
	}
	return c.cmd
}

func (c *CloseCommand) Execute(cmd *cobra.Command, args []string) error {
	c.manager.CloseSession()
	fmt.Fprintln(cmd.OutOrStdout(), "session closed")
	return nil
}

type StatusCommand struct {
	cmd     *cobra.Command
	manager *session.Manager
}

func NewStatusCommand(manager *session.Manager) *StatusCommand {
	return &StatusCommand{manager: manager}
}

func (c *StatusCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
	}
	return c.cmd
}

func (c *StatusCommand) Execute(cmd *cobra.Command, args []string) error {
	status := c.manager.Status()

	switch status.State {
	case session.StateOpen:
		fmt.Fprintf(cmd.OutOrStdout(), "open, id=%s\n", status.SessionID)
	case session.StateError:
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", status.LastError)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), status.State.String())
	}
	return nil
}
