// Package cli implements the graphsync command-line interface.
package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/buildinfo"
	"github.com/matzehuels/graphsync/pkg/client"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "graphsync"

	// envServer overrides the default --server value.
	envServer = "GRAPHSYNC_SERVER"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	server string // base URL of the server for client commands
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Graphsync keeps a live task graph in sync across clients",
		Long:         `Graphsync is an in-memory graph server. Clients push mutations over HTTP, every change is broadcast to websocket subscribers, and unpositioned nodes are placed with a force-directed layout.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.server, "server", defaultServer(), "graphsync server URL")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.pushCommand())
	root.AddCommand(c.mutateCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.healthCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Client Factory
// =============================================================================

// newClient creates an API client for the --server URL.
func (c *CLI) newClient() (*client.Client, error) {
	return client.New(c.server, client.Options{Logger: c.Logger})
}

func defaultServer() string {
	if s := os.Getenv(envServer); s != "" {
		return s
	}
	return client.DefaultBaseURL
}
