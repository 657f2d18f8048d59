package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/gateway"
	"github.com/matzehuels/graphsync/pkg/graph"
)

// queryOpts selects the full graph or the neighbourhood of one node.
type queryOpts struct {
	center string
	depth  int
}

func (o *queryOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.center, "center", "", "only include nodes around this node id")
	cmd.Flags().IntVar(&o.depth, "depth", gateway.DefaultDepth, "hops from --center to include")
}

// fetchGraph retrieves the graph or subgraph selected by o.
func (c *CLI) fetchGraph(ctx context.Context, o queryOpts) (graph.Graph, error) {
	api, err := c.newClient()
	if err != nil {
		return graph.Graph{}, err
	}
	if o.center == "" {
		return api.Graph(ctx)
	}
	return api.Subgraph(ctx, o.center, o.depth)
}

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	queryOpts
	json   bool   // print the node-link JSON instead of a table
	output string // write the node-link JSON to a file
}

// graphCommand creates the graph command that prints the server graph.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the server graph",
		Example: `  graphsync graph
  graphsync graph --center 42 --depth 1
  graphsync graph --json > snapshot.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), opts)
		},
	}

	opts.queryOpts.register(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "print node-link JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write node-link JSON to a file")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, opts graphOpts) error {
	g, err := c.fetchGraph(ctx, opts.queryOpts)
	if err != nil {
		return err
	}

	switch {
	case opts.output != "":
		if err := graph.WriteGraphFile(g, opts.output); err != nil {
			return err
		}
		printSuccess("Saved snapshot")
		printFile(opts.output)
		printStats(len(g.Nodes), len(g.Edges), scopeLabel(opts.queryOpts))
		return nil
	case opts.json:
		return graph.WriteGraph(g, stdout)
	}

	if len(g.Nodes) == 0 {
		if opts.center != "" {
			printWarning("Node %s is not in the graph", opts.center)
		} else {
			printInfo("Graph is empty")
		}
		return nil
	}

	fmt.Fprintln(stdout, StyleTitle.Render(c.server))
	fmt.Fprintln(stdout, nodeTable(g, opts.center))
	printStats(len(g.Nodes), len(g.Edges), scopeLabel(opts.queryOpts))
	return nil
}

func scopeLabel(o queryOpts) string {
	if o.center == "" {
		return "full graph"
	}
	return fmt.Sprintf("depth %d from %s", o.depth, o.center)
}

// nodeTable renders the nodes of g with their degree. The center row is
// highlighted.
func nodeTable(g graph.Graph, center string) string {
	degree := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	rows := make([][]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		rows = append(rows, []string{
			n.ID,
			n.Title,
			orDash(string(n.Status)),
			orDash(string(n.Kind)),
			orDash(string(n.Priority)),
			strconv.Itoa(degree[n.ID]),
			fmt.Sprintf("%.0f, %.0f", n.X, n.Y),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("ID", "Title", "Status", "Type", "Priority", "Links", "Position").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			if row < 0 || row >= len(g.Nodes) {
				return lipgloss.NewStyle()
			}
			n := g.Nodes[row]
			style := statusStyle(n.Status).Padding(0, 1)
			switch {
			case n.ID == center:
				return style.Bold(true).Foreground(colorCyan)
			case n.Status == "" || n.Status == graph.StatusOpen:
				if col >= 5 {
					return style.Foreground(colorGray)
				}
			}
			return style
		}).
		Render()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
