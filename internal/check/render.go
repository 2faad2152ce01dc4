package check

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render writes results as a table with a pass count footer.
func Render(w io.Writer, baseURL string, results []Result) {
	fmt.Fprintf(w, "Checking unified API at %s\n", baseURL)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"", "Check", "Detail", "Time"})

	for _, r := range results {
		mark := "✓"
		if !r.OK {
			mark = "✗"
		}
		t.AppendRow(table.Row{mark, r.Name, r.Detail, r.Duration.Round(time.Millisecond).String()})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d checks passed", Passed(results), len(results)), ""})
	t.Render()
}
