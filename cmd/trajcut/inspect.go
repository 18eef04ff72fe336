package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/trajcut/trajcut-agent/internal/project"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <project>",
		Short: "Open a project through the stabilization service and list its clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cfg)
			session := project.New(project.Config{
				Client: newServiceClient(cfg, logger),
				Logger: logger,
			})
			return inspectProject(cmd.Context(), cmd.OutOrStdout(), session, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the clip snapshots as JSON")
	return cmd
}

// inspectProject opens name and prints one row per library clip.
func inspectProject(ctx context.Context, out io.Writer, session *project.Session, name string, asJSON bool) error {
	if err := session.Open(ctx, name); err != nil {
		return fmt.Errorf("open project %s: %w", name, err)
	}
	clips, err := session.Clips()
	if err != nil {
		return err
	}

	library := clips[:0:0]
	for _, c := range clips {
		if !c.Composite {
			library = append(library, c)
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(library)
	}

	var total float64
	rows := make([][]string, 0, len(library))
	for _, c := range library {
		rows = append(rows, clipRow(session, c))
		total += c.SourceDuration
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Clip", "Samples", "Trim steps", "Duration", "Stabilizable", "Lead", "Follow", "Colour"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "%s: %s, %s of footage\n", name, pluralize(len(library), "clip"), formatSeconds(total))
	return nil
}

func clipRow(session *project.Session, c project.ClipView) []string {
	samples := "-"
	if traj, _, err := session.ClipTrajectory(c.Slug); err == nil {
		samples = humanize.Comma(int64(len(traj)))
	}
	return []string{
		c.Slug,
		samples,
		humanize.Comma(int64(len(c.SampledPercents) - 1)),
		formatSeconds(c.SourceDuration),
		yesNo(c.IsStabilizable),
		yesNo(c.BeforeOthersOK),
		yesNo(c.AfterOthersOK),
		c.Color,
	}
}

func formatSeconds(s float64) string {
	if s <= 0 {
		return "unknown"
	}
	return humanize.FtoaWithDigits(s, 1) + "s"
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
