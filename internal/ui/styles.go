package ui

import (
	"math/big"
	"strings"

	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess   = lipgloss.Color("#00D26A") // confirmed
	ColorWarning   = lipgloss.Color("#FFB800") // submitting, pending
	ColorError     = lipgloss.Color("#FF4444") // failed
	ColorAddress   = lipgloss.Color("#00B4D8")
	ColorValue     = lipgloss.Color("#FFFFFF")
	ColorMeta      = lipgloss.Color("#555555")
	ColorBorder    = lipgloss.Color("#1E3A5F")
	ColorBrand     = lipgloss.Color("#9B5DE5") // titles, symbols
	ColorHighlight = lipgloss.Color("#F15BB5") // focused field, idle button
	ColorInfo      = lipgloss.Color("#4EA8DE")
)

var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleAddress = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleValue   = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	StyleMeta    = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleSymbol  = lipgloss.NewStyle().Foreground(ColorBrand).Bold(true)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorInfo)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleFocusBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorHighlight).
				Padding(0, 1)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true).
			Underline(true)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorHighlight).
			Foreground(lipgloss.Color("#000000")).
			Bold(true)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorBrand).
			Bold(true).
			MarginBottom(1)
)

// StateStyle colours a creation state: pending work yellow, outcomes green
// or red, idle highlighted.
func StateStyle(st flow.State) lipgloss.Style {
	switch st {
	case flow.Submitting, flow.Pending:
		return StyleWarning
	case flow.Confirmed:
		return StyleSuccess
	case flow.Failed:
		return StyleError
	}
	return StyleSelected
}

// Supply renders a token amount with thousands separators. nil is zero.
func Supply(v *big.Int) string {
	if v == nil {
		return "0"
	}
	digits := v.String()
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}
	return sign + sb.String()
}

func Banner() string {
	title := StyleTitle.Render("  ◆ ctfactory")
	tagline := StyleMeta.Render("  Confidential token factory  ·  mint, list, track")
	return title + "\n" + tagline + "\n"
}

// Success formats a success message.
func Success(msg string) string { return StyleSuccess.Render("✓ " + msg) }

// Warn formats a warning message.
func Warn(msg string) string { return StyleWarning.Render("⚠ " + msg) }

// Err formats an error message.
func Err(msg string) string { return StyleError.Render("✗ " + msg) }

// Info formats an informational message.
func Info(msg string) string { return StyleInfo.Render("ℹ " + msg) }

// Hint formats a follow-up suggestion.
func Hint(msg string) string { return StyleMeta.Render("→ " + msg) }

// Addr formats an address.
func Addr(a string) string { return StyleAddress.Render(a) }

// Val formats a value.
func Val(v string) string { return StyleValue.Render(v) }

// Meta formats metadata text.
func Meta(m string) string { return StyleMeta.Render(m) }

// Symbol formats a token symbol.
func Symbol(s string) string { return StyleSymbol.Render(s) }

// TruncateAddr shortens an address for display: 0x1234…5678.
func TruncateAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
