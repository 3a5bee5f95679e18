package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// Column defines a table column.
type Column struct {
	Title string
	Width int
}

// Row is a slice of cell values.
type Row []string

// Table renders a lipgloss-styled table.
type Table struct {
	Columns  []Column
	Rows     []Row
	Selected int // highlighted row index (-1 = none)
}

// NewTable creates a new table.
func NewTable(cols []Column) *Table {
	return &Table{Columns: cols, Selected: -1}
}

// AddRow appends a row.
func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Render returns the full table as a string. Cells are padded by rune count
// so names with multi-byte characters keep their columns aligned.
func (t *Table) Render() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cellStyle := lipgloss.NewStyle().Foreground(ColorValue)

	var headers, divider []string
	for _, col := range t.Columns {
		headers = append(headers, headerStyle.Render(fit(col.Title, col.Width)))
		divider = append(divider, StyleMeta.Render(strings.Repeat("-", col.Width)))
	}
	sb.WriteString(strings.Join(headers, " ") + "\n")
	sb.WriteString(strings.Join(divider, " ") + "\n")

	for i, row := range t.Rows {
		style := cellStyle
		if i == t.Selected {
			style = StyleSelected
		}
		cells := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			cells[j] = style.Render(fit(val, col.Width))
		}
		sb.WriteString(strings.Join(cells, " ") + "\n")
	}
	return sb.String()
}

// fit left-aligns s in exactly width runes, truncating with an ellipsis.
func fit(s string, width int) string {
	r := []rune(s)
	switch {
	case width <= 0:
		return ""
	case len(r) > width:
		if width == 1 {
			return "…"
		}
		return string(r[:width-1]) + "…"
	default:
		return s + strings.Repeat(" ", width-len(r))
	}
}

// TokenTable lays out records with 1-based indices, matching `token list`.
func TokenTable(recs []registry.TokenRecord) *Table {
	t := NewTable([]Column{
		{Title: "#", Width: 4},
		{Title: "Name", Width: 20},
		{Title: "Symbol", Width: 8},
		{Title: "Address", Width: 13},
		{Title: "Creator", Width: 13},
		{Title: "Supply", Width: 16},
	})
	for i, rec := range recs {
		t.AddRow(Row{
			strconv.Itoa(i + 1),
			rec.Name,
			rec.Symbol,
			TruncateAddr(rec.TokenAddress.Hex()),
			TruncateAddr(rec.Creator.Hex()),
			Supply(rec.TotalSupply),
		})
	}
	return t
}

// KeyValueBlock renders a set of key-value pairs in a bordered box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-16s", p[0]+":"))
		sb.WriteString("  " + key + " " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(sb.String())
}

// RecordBlock renders one token record.
func RecordBlock(title string, rec registry.TokenRecord) string {
	return KeyValueBlock(title, [][2]string{
		{"Name", rec.Name},
		{"Symbol", rec.Symbol},
		{"Address", rec.TokenAddress.Hex()},
		{"Creator", rec.Creator.Hex()},
		{"Total supply", Supply(rec.TotalSupply)},
	})
}
