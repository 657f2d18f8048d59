package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/graphsync/pkg/fanout"
	"github.com/matzehuels/graphsync/pkg/graph"
)

// watchCommand creates the watch command that follows live events.
func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow live graph events",
		Long: `Subscribe to the server's event channel and show events as they arrive,
with running counts per event type. Press q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context())
		},
	}
}

func (c *CLI) runWatch(ctx context.Context) error {
	api, err := c.newClient()
	if err != nil {
		return err
	}
	sub, err := api.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	p := tea.NewProgram(NewWatchModel(api.BaseURL(), sub.Events()), tea.WithContext(ctx), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if m, ok := final.(WatchModel); ok && m.Closed {
		if err := sub.Err(); err != nil {
			return err
		}
		printInfo("Server closed the event stream after %d events", m.Total)
	}
	return nil
}

// =============================================================================
// WatchModel - Live event view
// =============================================================================

// Watch styles
var (
	watchTypeStyle = lipgloss.NewStyle().Foreground(colorCyan)
	watchDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

// watchEventOrder fixes the order of the counters line.
var watchEventOrder = []string{
	fanout.TypeNodeAdd,
	fanout.TypeNodeUpdate,
	fanout.TypeNodeRemove,
	fanout.TypeEdgeAdd,
	fanout.TypeEdgeRemove,
	fanout.TypeGraphReplaced,
}

// eventMsg carries one event from the subscription into the program.
type eventMsg fanout.Event

// streamClosedMsg reports that the subscription ended.
type streamClosedMsg struct{}

// tickMsg refreshes relative timestamps.
type tickMsg time.Time

// watchEntry is one received event.
type watchEntry struct {
	At    time.Time
	Event fanout.Event
}

// WatchModel is the bubbletea model for the watch command.
type WatchModel struct {
	Server string
	Counts map[string]int
	Total  int
	Recent []watchEntry // newest first
	Height int
	Closed bool

	events <-chan fanout.Event
	now    func() time.Time
}

// NewWatchModel creates a model that reads from events.
func NewWatchModel(server string, events <-chan fanout.Event) WatchModel {
	return WatchModel{
		Server: server,
		Counts: make(map[string]int),
		Height: 15,
		events: events,
		now:    time.Now,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func waitForEvent(events <-chan fanout.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
		if len(m.Recent) > m.Height {
			m.Recent = m.Recent[:m.Height]
		}
	case eventMsg:
		m = m.record(fanout.Event(msg))
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		m.Closed = true
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

// record counts ev and prepends it to the recent list. The connected
// acknowledgement is shown but not counted.
func (m WatchModel) record(ev fanout.Event) WatchModel {
	counts := make(map[string]int, len(m.Counts)+1)
	for k, v := range m.Counts {
		counts[k] = v
	}
	if ev.Type != fanout.TypeConnected {
		counts[ev.Type]++
		m.Total++
	}
	m.Counts = counts

	recent := make([]watchEntry, 0, min(len(m.Recent)+1, m.Height))
	recent = append(recent, watchEntry{At: m.now(), Event: ev})
	for _, e := range m.Recent {
		if len(recent) == m.Height {
			break
		}
		recent = append(recent, e)
	}
	m.Recent = recent
	return m
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Watching " + m.Server))
	b.WriteString("\n")
	b.WriteString(watchDimStyle.Render("q quit"))
	b.WriteString("\n\n")
	b.WriteString(m.countersLine())
	b.WriteString("\n")

	now := m.now()
	rows := make([][]string, 0, len(m.Recent))
	for _, e := range m.Recent {
		subject, detail := describeEvent(e.Event)
		rows = append(rows, []string{formatRelativeTime(e.At, now), e.Event.Type, subject, detail})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("When", "Event", "Subject", "Detail").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return styleHeader.Padding(0, 1)
			case col == 0:
				return base.Foreground(colorDim)
			case col == 1:
				return base.Inherit(watchTypeStyle)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if m.Closed {
		b.WriteString(StyleWarning.Render("  stream closed"))
		b.WriteString("\n")
	}
	return b.String()
}

// countersLine renders "12 events · node:add 4 · edge:add 8".
func (m WatchModel) countersLine() string {
	parts := []string{StyleNumber.Render(fmt.Sprint(m.Total)) + " events"}

	seen := make(map[string]bool, len(watchEventOrder))
	for _, typ := range watchEventOrder {
		seen[typ] = true
		if n := m.Counts[typ]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", typ, StyleNumber.Render(fmt.Sprint(n))))
		}
	}
	var other []string
	for typ := range m.Counts {
		if !seen[typ] {
			other = append(other, typ)
		}
	}
	sort.Strings(other)
	for _, typ := range other {
		parts = append(parts, fmt.Sprintf("%s %s", typ, StyleNumber.Render(fmt.Sprint(m.Counts[typ]))))
	}
	return "  " + strings.Join(parts, StyleDim.Render(" · "))
}

// =============================================================================
// Helpers
// =============================================================================

// describeEvent returns a short subject and detail for a table row.
func describeEvent(ev fanout.Event) (subject, detail string) {
	switch ev.Type {
	case fanout.TypeConnected:
		return "", ev.Message
	case fanout.TypeNodeAdd:
		if ev.Node == nil {
			return "", ""
		}
		return ev.Node.ID, fmt.Sprintf("%s at %.0f, %.0f", ev.Node.DisplayLabel(), ev.Node.X, ev.Node.Y)
	case fanout.TypeNodeUpdate:
		if ev.Patch == nil {
			return "", ""
		}
		return ev.Patch.ID, strings.Join(patchFields(*ev.Patch), ", ")
	case fanout.TypeNodeRemove:
		return ev.ID, ""
	case fanout.TypeEdgeAdd, fanout.TypeEdgeRemove:
		if ev.Edge == nil {
			return "", ""
		}
		return ev.Edge.Source + " -- " + ev.Edge.Target, ""
	case fanout.TypeGraphReplaced:
		var nodes, edges int
		if ev.NodeCount != nil {
			nodes = *ev.NodeCount
		}
		if ev.EdgeCount != nil {
			edges = *ev.EdgeCount
		}
		return "", fmt.Sprintf("%d nodes, %d edges", nodes, edges)
	}
	return ev.ID, ""
}

// patchFields lists the attributes a patch sets, in wire names.
func patchFields(p graph.NodePatch) []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Status != nil {
		fields = append(fields, "status="+string(*p.Status))
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Importance != nil {
		fields = append(fields, "importance")
	}
	if p.Kind != nil {
		fields = append(fields, "type")
	}
	if p.UpdatedAt != nil {
		fields = append(fields, "updatedAt")
	}
	if p.HasPosition() {
		fields = append(fields, "position")
	}
	return fields
}

func formatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Second:
		return "now"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}
