package ui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNothingToPick is returned by Pick for an empty list.
var ErrNothingToPick = errors.New("nothing to pick from")

// PickerItem is one entry shown in the picker.
type PickerItem struct {
	Label    string // primary text (e.g. wallet name)
	SubLabel string // secondary text shown dimmed (e.g. address)
	Value    string // value returned on selection
	Current  bool   // marked as the active choice; the cursor starts here
}

// PickerModel is a single-choice list. Selected is nil after a cancel.
type PickerModel struct {
	Title    string
	Items    []PickerItem
	Cursor   int
	Selected *PickerItem
	Quitting bool
}

// NewPicker starts the cursor on the current item, if any.
func NewPicker(title string, items []PickerItem) PickerModel {
	m := PickerModel{Title: title, Items: items}
	for i, it := range items {
		if it.Current {
			m.Cursor = i
			break
		}
	}
	return m
}

func (m PickerModel) Init() tea.Cmd { return nil }

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || len(m.Items) == 0 {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.Quitting = true
		return m, tea.Quit
	case "up", "k", "shift+tab":
		m.Cursor = (m.Cursor - 1 + len(m.Items)) % len(m.Items)
	case "down", "j", "tab":
		m.Cursor = (m.Cursor + 1) % len(m.Items)
	case "enter", " ":
		item := m.Items[m.Cursor]
		m.Selected = &item
		return m, tea.Quit
	}
	return m, nil
}

func (m PickerModel) View() string {
	if m.Quitting || m.Selected != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n" + StyleTitle.Render("  "+m.Title) + "\n\n")
	for i, item := range m.Items {
		prefix := "    "
		if i == m.Cursor {
			prefix = "  ▸ "
		}
		line := prefix + StyleValue.Render(item.Label)
		if item.SubLabel != "" {
			line += "  " + StyleMeta.Render(item.SubLabel)
		}
		if item.Current {
			line += "  " + StyleSuccess.Render("✓")
		}
		if i == m.Cursor {
			sb.WriteString(StyleSelected.Render(line) + "\n")
		} else {
			sb.WriteString(line + "\n")
		}
	}
	sb.WriteString("\n" + StyleMeta.Render("  [ ↑↓ / jk ] navigate   [ Enter ] select   [ q ] cancel") + "\n")
	return sb.String()
}

// Pick runs the picker and returns the chosen Value, or "" when cancelled.
func Pick(title string, items []PickerItem) (string, error) {
	if len(items) == 0 {
		return "", ErrNothingToPick
	}
	final, err := tea.NewProgram(NewPicker(title, items)).Run()
	if err != nil {
		return "", err
	}
	fm := final.(PickerModel)
	if fm.Selected == nil {
		return "", nil
	}
	return fm.Selected.Value, nil
}
