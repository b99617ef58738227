package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"widgetcore/pkg/domain"
)

var (
	colorCyan  = lipgloss.Color("36")
	colorGreen = lipgloss.Color("35")
	colorGray  = lipgloss.Color("245")
	colorDim   = lipgloss.Color("240")
)

var (
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	styleHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	iconSuccess = "✓"
	iconArrow   = "→"
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, StyleSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// renderWidgetTable renders a page of widgets followed by a paging footer.
func renderWidgetTable(page domain.Page) string {
	rows := make([][]string, 0, len(page.Content))
	for _, w := range page.Content {
		rows = append(rows, []string{
			strconv.Itoa(w.Index),
			strconv.FormatInt(w.ID, 10),
			fmt.Sprintf("%d,%d", w.X, w.Y),
			fmt.Sprintf("%gx%g", w.Width, w.Height),
			w.ModificationDate.UTC().Format(time.RFC3339),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Index", "ID", "Origin", "Size", "Modified").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == 0 {
				return StyleNumber
			}
			return lipgloss.NewStyle()
		})

	footer := fmt.Sprintf("page %d · size %d", page.Page, page.Size)
	if page.Total != nil {
		footer += fmt.Sprintf(" · %d total", *page.Total)
	}
	if page.HasNext {
		footer += " · more " + iconArrow
	}
	return t.Render() + "\n" + StyleDim.Render(footer)
}
