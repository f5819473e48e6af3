package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
)

// ActionQuit ends the run before generation when the user cancels.
const ActionQuit flow.Action = "quit"

var (
	handshakeTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	diagramIDStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	diagramMetaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle         = lipgloss.NewStyle().Bold(true)
)

// handshakeNode shows the plan and lets the user pick diagrams. With a
// non-interactive run (flag set, or stdin is not a terminal) every
// diagram is selected.
type handshakeNode struct {
	in             io.Reader
	out            io.Writer
	nonInteractive bool
	log            *logging.Logger
}

func newHandshakeNode(nonInteractive bool, log *logging.Logger) *handshakeNode {
	return &handshakeNode{
		in:             os.Stdin,
		out:            os.Stdout,
		nonInteractive: nonInteractive || !stdinIsTerminal(),
		log:            log.Named("handshake"),
	}
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func (n *handshakeNode) Name() string { return "handshake" }

func (n *handshakeNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Plan == nil {
		return nil, fmt.Errorf("%w: diagram plan (architect must run first)", ErrDependencyMissing)
	}
	return s.Plan.Diagrams, nil
}

func (n *handshakeNode) Exec(ctx context.Context, prep any) (any, error) {
	diagrams := prep.([]plan.Diagram)
	if len(diagrams) == 0 {
		return []plan.Diagram(nil), nil
	}

	fmt.Fprintln(n.out)
	fmt.Fprintln(n.out, handshakeTitleStyle.Render("PROPOSED ARCHITECTURAL DIAGRAMS"))
	fmt.Fprintln(n.out)
	for _, d := range diagrams {
		fmt.Fprintf(n.out, "  %s %s\n", diagramIDStyle.Render(fmt.Sprintf("[%d]", d.ID)), d.Name)
		fmt.Fprintf(n.out, "      %s\n", diagramMetaStyle.Render(
			fmt.Sprintf("type: %s  complexity: %s", strings.ToUpper(d.Type), orUnknown(d.Complexity))))
		fmt.Fprintf(n.out, "      %s\n", diagramMetaStyle.Render("focus: "+d.Focus))
		if len(d.Files) > 0 {
			preview := d.Files
			if len(preview) > 3 {
				preview = preview[:3]
			}
			fmt.Fprintf(n.out, "      %s\n", diagramMetaStyle.Render("files: "+strings.Join(preview, ", ")))
		}
		fmt.Fprintln(n.out)
	}

	if n.nonInteractive {
		n.log.Info(ctx, "non-interactive mode, selecting all diagrams",
			zap.Int("count", len(diagrams)))
		return diagrams, nil
	}

	fmt.Fprintln(n.out, "Enter diagram IDs separated by commas (e.g. 1,3,5), 'all', or 'quit'.")
	return n.readSelection(diagrams)
}

func (n *handshakeNode) readSelection(diagrams []plan.Diagram) ([]plan.Diagram, error) {
	scanner := bufio.NewScanner(n.in)
	for {
		fmt.Fprint(n.out, promptStyle.Render("Select diagrams to generate: "))
		if !scanner.Scan() {
			// EOF behaves like a non-interactive run.
			return diagrams, nil
		}
		input := strings.ToLower(strings.TrimSpace(scanner.Text()))

		switch input {
		case "quit", "q", "exit":
			return []plan.Diagram(nil), nil
		case "all", "a", "*":
			return diagrams, nil
		}

		ids, err := parseIDList(input)
		if err != nil {
			fmt.Fprintln(n.out, "Invalid input. Enter numbers separated by commas.")
			continue
		}
		var selected []plan.Diagram
		for _, d := range diagrams {
			for _, id := range ids {
				if d.ID == id {
					selected = append(selected, d)
					break
				}
			}
		}
		if len(selected) == 0 {
			fmt.Fprintln(n.out, "No matching diagrams for those IDs.")
			continue
		}
		return selected, nil
	}
}

func parseIDList(input string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(input, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (n *handshakeNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	selected := exec.([]plan.Diagram)
	if len(selected) == 0 {
		n.log.Info(ctx, "generation cancelled, nothing selected")
		s.Queue = nil
		return ActionQuit, nil
	}

	s.Queue = selected
	s.Cursor = 0
	s.Generated = nil
	n.log.Info(ctx, "starting generation", zap.Int("selected", len(selected)))
	return flow.ActionDefault, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
