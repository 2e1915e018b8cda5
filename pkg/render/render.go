// Package render formats rebase plans and verification reports for
// terminal output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/plan"
	"github.com/Sumatoshi-tech/replan/pkg/verify"
)

// Format selects the plan output representation.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatTodo  Format = "todo"
	FormatJSON  Format = "json"
)

// ErrUnknownFormat indicates an unsupported --format value.
var ErrUnknownFormat = fmt.Errorf("unknown output format")

const shortIDLen = 8

// Options configures rendering.
type Options struct {
	// Format selects table, todo, or json output.
	Format Format
	// IncludeDrops lists dropped commits alongside kept operations.
	IncludeDrops bool
	// NoColor disables ANSI colors.
	NoColor bool
	// Now anchors relative timestamps; zero means time.Now.
	Now time.Time
}

// WritePlan renders a plan in the configured format. The graph supplies
// commit metadata (subjects, timestamps) the plan references by id.
func WritePlan(
	w io.Writer,
	graph *history.Graph,
	rebasePlan *plan.Plan,
	report *verify.Report,
	opts Options,
) error {
	if opts.NoColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	switch opts.Format {
	case FormatTable, "":
		return writeTable(w, graph, rebasePlan, report, opts)
	case FormatTodo:
		return rebasePlan.WriteTodo(w, plan.EmitOptions{IncludeDrops: opts.IncludeDrops})
	case FormatJSON:
		return writeJSON(w, graph, rebasePlan, report)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

func writeTable(
	w io.Writer,
	graph *history.Graph,
	rebasePlan *plan.Plan,
	report *verify.Report,
	opts Options,
) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"#", "Op", "Commit", "Subject", "Age"})

	for i := range rebasePlan.Ops {
		op := &rebasePlan.Ops[i]

		subject := ""
		when := time.Time{}

		if commit, err := graph.Get(op.Commit); err == nil {
			subject = commit.Subject()
			when = commit.When
		}

		if op.Kind == plan.Reword {
			subject = firstLine(op.Message)
		}

		tbl.AppendRow(table.Row{
			op.Index + 1,
			opLabel(op.Kind),
			shortID(string(op.Commit)),
			subject,
			age(when, now),
		})
	}

	tbl.Render()

	if opts.IncludeDrops && len(rebasePlan.Drops) > 0 {
		dropped := make([]string, 0, len(rebasePlan.Drops))
		for _, drop := range rebasePlan.Drops {
			dropped = append(dropped, shortID(string(drop.ID)))
		}

		color.New(color.FgRed).Fprintf(w, "dropped: %s\n", strings.Join(dropped, ", "))
	}

	writeSummary(w, rebasePlan, report)

	return nil
}

func writeSummary(w io.Writer, rebasePlan *plan.Plan, report *verify.Report) {
	fmt.Fprintf(w, "%s, %s dropped\n",
		pluralize(len(rebasePlan.Ops), "operation"),
		humanize.Comma(int64(len(rebasePlan.Drops))))

	if report == nil {
		return
	}

	if report.OK() {
		color.New(color.FgGreen).Fprintf(w, "verification passed")
	} else {
		color.New(color.FgRed).Fprintf(w, "verification failed: %s diverged", pluralize(len(report.Diffs), "path"))
	}

	if len(report.Warnings) > 0 {
		color.New(color.FgYellow).Fprintf(w, " (%s)", pluralize(len(report.Warnings), "squash conflict"))
	}

	fmt.Fprintln(w)
}

// planDocument is the JSON output shape.
type planDocument struct {
	Operations []operationDocument `json:"operations"`
	Dropped    []string            `json:"dropped"`
	Verified   *bool               `json:"verified,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

type operationDocument struct {
	Op       string   `json:"op"`
	Commit   string   `json:"commit"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message,omitempty"`
	Squashed []string `json:"squashed,omitempty"`
}

func writeJSON(w io.Writer, graph *history.Graph, rebasePlan *plan.Plan, report *verify.Report) error {
	doc := planDocument{
		Operations: make([]operationDocument, 0, len(rebasePlan.Ops)),
		Dropped:    make([]string, 0, len(rebasePlan.Drops)),
	}

	for i := range rebasePlan.Ops {
		op := &rebasePlan.Ops[i]

		opDoc := operationDocument{
			Op:      string(op.Kind),
			Commit:  string(op.Commit),
			Message: op.Message,
		}

		if commit, err := graph.Get(op.Commit); err == nil {
			opDoc.Subject = commit.Subject()
		}

		for _, squashed := range op.Squashed {
			opDoc.Squashed = append(opDoc.Squashed, string(squashed))
		}

		doc.Operations = append(doc.Operations, opDoc)
	}

	for _, drop := range rebasePlan.Drops {
		doc.Dropped = append(doc.Dropped, string(drop.ID))
	}

	if report != nil {
		ok := report.OK()
		doc.Verified = &ok

		for _, warning := range report.Warnings {
			doc.Warnings = append(doc.Warnings, warning.String())
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	return nil
}

func opLabel(kind plan.Kind) string {
	switch kind {
	case plan.Pick:
		return color.GreenString("pick")
	case plan.Reword:
		return color.YellowString("reword")
	case plan.Squash:
		return color.CyanString("squash")
	default:
		return string(kind)
	}
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}

	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return line
}

func age(when, now time.Time) string {
	if when.IsZero() {
		return ""
	}

	return humanize.RelTime(when, now, "ago", "from now")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}

	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}
