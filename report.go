package wgapple

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteReport renders the checklist, the size/architecture table and a
// one-line summary.
func WriteReport(w io.Writer, r *VerificationReport) error {
	fmt.Fprintf(w, "\nVerification of %s\n\n", r.Bundle)

	checks := newTable(w)
	checks.Header([]string{"Check", "Status", "Detail"})
	rows := make([][]any, 0, len(r.Checks))
	for _, c := range r.Checks {
		status := color.Success.Sprint("PASS")
		if !c.Passed {
			status = color.Danger.Sprint("FAIL")
		}
		rows = append(rows, []any{c.Name, status, c.Detail})
	}
	if err := checks.Bulk(rows); err != nil {
		return err
	}
	if err := checks.Render(); err != nil {
		return err
	}

	if len(r.Sizes) > 0 {
		fmt.Fprintln(w)
		sizes := newTable(w)
		sizes.Header([]string{"Variant", "Architectures", "Size"})
		rows := make([][]any, 0, len(r.Sizes)+1)
		for _, s := range r.Sizes {
			rows = append(rows, []any{s.Variant, strings.Join(s.Architectures, " "), humanSize(s.Size)})
		}
		rows = append(rows, []any{"bundle total", "", humanSize(r.TotalSize)})
		if err := sizes.Bulk(rows); err != nil {
			return err
		}
		if err := sizes.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	summary := fmt.Sprintf("Verification summary: Total: %d  Passed: %d  Failed: %d", len(r.Checks), r.Passed, r.Failed)
	if r.OK() {
		fmt.Fprintln(w, color.Success.Sprint(summary))
	} else {
		fmt.Fprintln(w, color.Danger.Sprint(summary))
	}
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(
		w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.On, BetweenRows: tw.On}},
		})),
	)
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
