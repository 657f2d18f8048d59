package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/render/nodelink"
)

const (
	formatSVG = "svg" // Graphviz neato output with pinned positions
	formatDOT = "dot" // the DOT source
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	queryOpts
	output   string // output file; stdout when empty
	format   string // "svg" or "dot"
	detailed bool   // add status, priority and importance to labels
}

// renderCommand creates the render command that draws the server graph at
// its stored positions.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the server graph to SVG or DOT",
		Long: `Render the server graph to SVG or Graphviz DOT.

Nodes are drawn at the positions stored on the server, so the picture matches
what connected clients see. Without --format the format follows the -o
extension and defaults to SVG.`,
		Example: `  graphsync render -o graph.svg
  graphsync render --center 42 --depth 1 --detailed -o around-42.svg
  graphsync render --format dot | dot -Kneato -n -Tpng > graph.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(opts.format, opts.output)
			if err != nil {
				return err
			}
			opts.format = format
			return c.runRender(cmd.Context(), opts)
		},
	}

	opts.queryOpts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: svg or dot")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show node metadata in labels")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, opts renderOpts) error {
	g, err := c.fetchGraph(ctx, opts.queryOpts)
	if err != nil {
		return err
	}
	if len(g.Nodes) == 0 && opts.center != "" {
		return errors.New(errors.ErrCodeNotFound, "node %s is not in the graph", opts.center)
	}

	prog := newProgress(c.Logger)
	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: opts.detailed, Highlight: opts.center})
	out := []byte(dot)
	if opts.format == formatSVG {
		if out, err = nodelink.RenderSVG(ctx, dot); err != nil {
			return err
		}
	}
	prog.done(fmt.Sprintf("Rendered %d nodes", len(g.Nodes)))

	if opts.output == "" {
		_, err := stdout.Write(out)
		return err
	}
	if err := errors.ValidatePath(opts.output); err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	printSuccess("Rendered %s", strings.ToUpper(opts.format))
	printFile(opts.output)
	printStats(len(g.Nodes), len(g.Edges), scopeLabel(opts.queryOpts))
	return nil
}

// resolveFormat picks the output format from the flag, falling back to the
// output file extension.
func resolveFormat(format, output string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".dot", ".gv":
			return formatDOT, nil
		default:
			return formatSVG, nil
		}
	}
	switch f := strings.ToLower(format); f {
	case formatSVG, formatDOT:
		return f, nil
	}
	return "", errors.New(errors.ErrCodeUnsupported, "unsupported format %q (want svg or dot)", format)
}
