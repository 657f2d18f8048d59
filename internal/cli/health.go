package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/config"
)

// healthCommand creates the health command that summarizes a running server.
func (c *CLI) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the health of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHealth(cmd.Context())
		},
	}
}

func (c *CLI) runHealth(ctx context.Context) error {
	api, err := c.newClient()
	if err != nil {
		return err
	}
	h, err := api.Health(ctx)
	if err != nil {
		printError("%s is unreachable", c.server)
		return err
	}
	v, err := api.Version(ctx)
	if err != nil {
		return err
	}

	printSuccess("%s is %s", StyleLink.Render(api.BaseURL()), h.Status)
	printKeyValue("Version", v.Version)
	printKeyValue("Nodes", StyleNumber.Render(strconv.Itoa(h.Nodes)))
	printKeyValue("Edges", StyleNumber.Render(strconv.Itoa(h.Edges)))
	printKeyValue("Subscribers", StyleNumber.Render(strconv.Itoa(h.Subscribers)))
	printKeyValue("Checked", h.Timestamp.Local().Format(time.DateTime))
	return nil
}

// configCommand creates the config command that prints the effective
// server configuration.
func (c *CLI) configCommand() *cobra.Command {
	var (
		path     string
		showPath bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective server configuration as TOML",
		Long: `Print the configuration "graphsync serve" would run with: built-in
defaults, then the config file, then GRAPHSYNC_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showPath {
				p, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("get config path: %w", err)
				}
				fmt.Fprintln(stdout, p)
				return nil
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprint(stdout, cfg.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "config file (default $XDG_CONFIG_HOME/graphsync/config.toml)")
	cmd.Flags().BoolVar(&showPath, "path", false, "print the default config file location")

	return cmd
}
