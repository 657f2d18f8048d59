package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/gateway"
)

// pushCommand creates the push command that bulk syncs a graph file.
func (c *CLI) pushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file.json>",
		Short: "Replace the server graph with a {nodes, edges} file",
		Long: `Replace the server graph with a {nodes, edges} JSON file.

Use "-" to read from stdin. If no node in the file carries coordinates the
server lays the graph out before broadcasting it.`,
		Example: `  graphsync push tasks.json
  cat tasks.json | graphsync push -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPush(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) runPush(ctx context.Context, path string) error {
	doc, err := readInput(path)
	if err != nil {
		return err
	}
	api, err := c.newClient()
	if err != nil {
		return err
	}

	spinner := newSpinner(ctx, "Pushing graph...")
	spinner.Start()
	if _, err := api.Push(ctx, doc); err != nil {
		spinner.StopWithError("Push failed")
		return err
	}
	spinner.Update("Reading back graph...")
	h, err := api.Health(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	printSuccess("Synced %s", displayPath(path))
	printStats(h.Nodes, h.Edges, fmt.Sprintf("%d subscribers", h.Subscribers))
	printNewline()
	printNextStep("Inspect it", appName+" graph")
	return nil
}

// mutateCommand creates the mutate command that sends one mutation.
func (c *CLI) mutateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mutate <type> <json>",
		Short: "Send a single mutation",
		Long: `Send a single mutation to the server.

Types: node:add, node:update, node:remove, edge:add, edge:remove, bulk:sync.
The payload is a JSON document, or "-" to read it from stdin.`,
		Example: `  graphsync mutate node:add '{"id": 7, "title": "Write docs"}'
  graphsync mutate edge:add '{"source": 7, "target": 3}'
  graphsync mutate node:remove '{"id": 7}'`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return gateway.Types(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMutate(cmd.Context(), args[0], args[1])
		},
	}
}

func (c *CLI) runMutate(ctx context.Context, mutationType, payload string) error {
	if !gateway.Known(mutationType) {
		return errors.New(errors.ErrCodeUnknownMutation, "unknown mutation type %q (want one of %s)",
			mutationType, strings.Join(gateway.Types(), ", "))
	}

	var data []byte
	if payload == "-" {
		var err error
		if data, err = readInput(payload); err != nil {
			return err
		}
	} else {
		data = []byte(payload)
		if !json.Valid(data) {
			return errors.New(errors.ErrCodeInvalidFormat, "payload is not valid JSON")
		}
	}

	api, err := c.newClient()
	if err != nil {
		return err
	}
	res, err := api.Sync(ctx, gateway.Mutation{Type: mutationType, Data: data})
	if err != nil {
		return err
	}

	if res.Applied {
		printSuccess("Applied %s", StyleHighlight.Render(res.Type))
	} else {
		printWarning("%s had no effect", res.Type)
	}
	return nil
}

// readInput reads a JSON document from path, or from stdin when path is "-".
func readInput(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		if err := errors.ValidatePath(path); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", displayPath(path))
	}
	if !json.Valid(data) {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "%s is not valid JSON", displayPath(path))
	}
	return data, nil
}

func displayPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}
