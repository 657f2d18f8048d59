// Package cli implements the graphsync command-line interface.
//
// The same binary runs the server (serve) and talks to a running server
// (push, mutate, graph, render, watch, health). The CLI is built using cobra
// and logs with charmbracelet/log.
//
// # Commands
//
//   - serve: Run the HTTP and websocket server until interrupted
//   - push: Replace the server graph with a {nodes, edges} file
//   - mutate: Send a single mutation
//   - graph: Print the graph or a neighbourhood as a table
//   - render: Write the graph as Graphviz DOT or SVG
//   - watch: Follow live events in a terminal UI
//   - health, config: Inspect the server and the effective configuration
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging.
//
// # Example
//
//	import "github.com/matzehuels/graphsync/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Server stopped (12.345s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
