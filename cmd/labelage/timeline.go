package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/timeline"
)

func (a *app) timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <number>",
		Short: "Show how one issue entered and left the tracked set",
		Long: `Replay a single issue and print every event that touched the tracked labels
or its open/closed state, with the number of tracked labels held afterwards and
whether the issue entered or left the tracked set.

Examples:
  labelage timeline 12345
  labelage timeline 12345 --reopen-policy when-labeled`,
		Args: cobra.ExactArgs(1),
		RunE: a.runTimeline,
	}
}

func (a *app) runTimeline(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[0])
	if err != nil || number < 1 {
		return fmt.Errorf("invalid issue number %q", args[0])
	}

	ctx := cmd.Context()
	cfg, cleanup, err := a.load(ctx)
	defer cleanup()
	if err != nil {
		return err
	}

	svc, err := a.buildService(cfg, a.logger(cfg))
	if err != nil {
		return err
	}

	issue, steps, err := svc.Timeline(ctx, number)
	if err != nil {
		return err
	}

	writeTimeline(a.out, issue, steps)
	return nil
}

// writeTimeline prints the issue header, its URL and current labels, then one line per step.
// Effects are colored when w is a terminal.
func writeTimeline(w io.Writer, issue domain.Issue, steps []timeline.Step) {
	r := lipgloss.NewRenderer(w)
	enterStyle := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	exitStyle := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})

	created := "created " + issue.CreatedAt.UTC().Format("2006-01-02")
	if issue.State != "" {
		created = issue.State + ", " + created
	}
	fmt.Fprintf(w, "#%d %s (%s)\n", issue.Number, issue.Title, created)
	if issue.WebURL != "" {
		fmt.Fprintln(w, mutedStyle.Render(issue.WebURL))
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(w, "labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if len(steps) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no tracked events"))
		return
	}

	for _, s := range steps {
		what := string(s.Kind)
		if s.Label != "" {
			what += " " + s.Label
		}
		line := fmt.Sprintf("%s  %-30s held=%d", s.At.UTC().Format("2006-01-02 15:04:05"), what, s.Held)
		switch s.Effect {
		case timeline.EffectEnter:
			line += "  " + enterStyle.Render("enter")
		case timeline.EffectExit:
			line += "  " + exitStyle.Render("exit")
		}
		fmt.Fprintln(w, line)
	}
}
