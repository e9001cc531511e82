package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/findings"
)

func newParseCommand(ctx *commandContext) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Extract and classify findings from a report",
		Long:  "Reads a model response or report text from a file, or from stdin when the argument is omitted or \"-\", and prints the classified sections.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			text, err := readInput(cmd, path)
			if err != nil {
				return err
			}

			extracted := findings.ExtractAll(text)
			sections, steps := findings.ClassifyTrace(slices.Values(extracted))

			if ctx.wantJSON(cmd) {
				out := parseOutput{Findings: extracted, Sections: sections}
				if trace {
					out.Trace = traceRows(steps)
				}
				return writeJSON(cmd, out)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSections(sections))
			if trace {
				fmt.Fprintln(cmd.OutOrStdout(), renderTrace(steps))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Show how each finding moved the classifier")
	return cmd
}

type parseOutput struct {
	Findings []domain.Finding `json:"findings"`
	Sections domain.Sections  `json:"sections"`
	Trace    []traceRow       `json:"trace,omitempty"`
}

type traceRow struct {
	FindingID int    `json:"finding_id"`
	State     string `json:"state"`
	Event     string `json:"event"`
	Action    string `json:"action"`
	Dropped   bool   `json:"dropped"`
}

func traceRows(steps []findings.Step) []traceRow {
	rows := make([]traceRow, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, traceRow{
			FindingID: s.FindingID,
			State:     s.State.String(),
			Event:     s.Event.String(),
			Action:    s.Action.String(),
			Dropped:   s.Dropped,
		})
	}
	return rows
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(b), nil
}

func renderSections(sections domain.Sections) string {
	var rows [][]string
	sections.Each(func(key domain.SectionKey, sec domain.Section) {
		if sec.Kind == domain.KindNarrative {
			body := sec.Content
			if sec.Description != "" {
				body = strings.TrimSpace(body + "\n" + sec.Description)
			}
			rows = append(rows, []string{string(key), "", body, ""})
			return
		}
		if len(sec.Items) == 0 {
			rows = append(rows, []string{string(key), "", "", ""})
			return
		}
		for _, item := range sec.Items {
			body := item.Title
			if item.Description != "" {
				body += "\n" + item.Description
			}
			pos := fmt.Sprintf("%d,%d", item.Coordinates.X, item.Coordinates.Y)
			rows = append(rows, []string{string(key), strconv.Itoa(item.ID), body, item.Location + " @ " + pos})
		}
	})
	return renderTable([]string{"Section", "#", "Finding", "Location"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderTrace(steps []findings.Step) string {
	rows := make([][]string, 0, len(steps))
	for _, s := range traceRows(steps) {
		rows = append(rows, []string{
			strconv.Itoa(s.FindingID),
			s.State,
			s.Event,
			s.Action,
			yesNo(s.Dropped),
		})
	}
	return renderTable([]string{"#", "State", "Event", "Action", "Dropped"}, rows, []columnAlignment{alignRight})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
