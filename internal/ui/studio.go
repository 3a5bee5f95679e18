package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// StudioConfig wires the studio to a creation flow and a gallery.
type StudioConfig struct {
	Creation *flow.Creation
	Gallery  *flow.Gallery
	Counter  *flow.RefreshCounter
	Network  string
	Identity string                  // connected address, "" when none
	TxURL    func(ref string) string // explorer link for a tx ref; may be nil
}

type field int

const (
	fieldName field = iota
	fieldSymbol
	fieldSupply
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldName:   "Token name",
	fieldSymbol: fmt.Sprintf("Symbol (max %d)", registry.MaxSymbolLength),
	fieldSupply: "Initial supply",
}

// ── Messages ─────────────────────────────────────────────────────────────────

type statusMsg flow.Status

type submitDoneMsg struct{ err error }

type refreshMsg uint64

type galleryMsg struct {
	snap flow.Snapshot
	err  error
}

// ── Bubble Tea model ─────────────────────────────────────────────────────────

// StudioModel is the interactive token studio: a creation form on top and
// the gallery of all tokens (and the connected identity's own) below.
type StudioModel struct {
	cfg StudioConfig
	ctx context.Context

	inputs   [fieldCount]string
	focus    field
	status   flow.Status
	inputErr string

	snap       flow.Snapshot
	galleryErr string

	statusCh  <-chan flow.Status
	refreshCh <-chan uint64
	unsub     []func()

	Quitting bool
}

// NewStudio subscribes to the flow and counter. Call Close when done.
func NewStudio(ctx context.Context, cfg StudioConfig) StudioModel {
	if cfg.Counter == nil {
		cfg.Counter = flow.NewRefreshCounter()
	}
	m := StudioModel{cfg: cfg, ctx: ctx, status: cfg.Creation.Status()}
	m.inputs[fieldSupply] = flow.DefaultSupplyDisplay

	var stop func()
	m.statusCh, stop = cfg.Creation.Subscribe()
	m.unsub = append(m.unsub, stop)
	m.refreshCh, stop = cfg.Counter.Subscribe()
	m.unsub = append(m.unsub, stop)
	return m
}

// Close releases the subscriptions.
func (m StudioModel) Close() {
	for _, stop := range m.unsub {
		stop()
	}
}

func (m StudioModel) Init() tea.Cmd {
	return tea.Batch(
		waitStatus(m.statusCh),
		waitRefresh(m.refreshCh),
		loadGallery(m.ctx, m.cfg.Gallery, m.cfg.Counter.Value()),
	)
}

func waitStatus(ch <-chan flow.Status) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(s)
	}
}

func waitRefresh(ch <-chan uint64) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return refreshMsg(n)
	}
}

func loadGallery(ctx context.Context, g *flow.Gallery, key uint64) tea.Cmd {
	return func() tea.Msg {
		snap, _, err := g.Refresh(ctx, key)
		return galleryMsg{snap: snap, err: err}
	}
}

func (m StudioModel) submit() tea.Cmd {
	form := flow.Form{
		Name:   m.inputs[fieldName],
		Symbol: m.inputs[fieldSymbol],
		Supply: m.inputs[fieldSupply],
	}
	creation, ctx := m.cfg.Creation, m.ctx
	return func() tea.Msg {
		_, err := creation.Submit(ctx, form)
		return submitDoneMsg{err: err}
	}
}

func (m StudioModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.status = flow.Status(msg)
		return m, waitStatus(m.statusCh)

	case submitDoneMsg:
		// Errors that leave the flow idle concern the input; the rest show
		// up as the Failed state.
		if msg.err != nil && m.cfg.Creation.Status().State == flow.Idle {
			m.inputErr = registry.UserMessage(msg.err)
		}
		m.status = m.cfg.Creation.Status()
		return m, nil

	case refreshMsg:
		return m, tea.Batch(waitRefresh(m.refreshCh), loadGallery(m.ctx, m.cfg.Gallery, uint64(msg)))

	case galleryMsg:
		if msg.err != nil {
			m.galleryErr = msg.err.Error()
			return m, nil
		}
		m.galleryErr = ""
		m.snap = msg.snap
	}
	return m, nil
}

func (m StudioModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.Quitting = true
		return m, tea.Quit
	case "tab", "down":
		m.focus = (m.focus + 1) % fieldCount
		return m, nil
	case "shift+tab", "up":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
		return m, nil
	case "enter":
		return m.activate()
	}

	if m.status.State != flow.Idle {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyBackspace:
		if r := []rune(m.inputs[m.focus]); len(r) > 0 {
			m.setInput(string(r[:len(r)-1]))
		}
	case tea.KeySpace:
		m.setInput(m.inputs[m.focus] + " ")
	case tea.KeyRunes:
		m.setInput(m.inputs[m.focus] + string(msg.Runes))
	}
	return m, nil
}

// setInput stores v in the focused field. The symbol field upper-cases,
// drops whitespace and stops at MaxSymbolLength.
func (m *StudioModel) setInput(v string) {
	m.inputErr = ""
	if m.focus == fieldSymbol {
		v = flow.NormalizeSymbolInput(v)
		if r := []rune(v); len(r) > registry.MaxSymbolLength {
			v = string(r[:registry.MaxSymbolLength])
		}
	}
	m.inputs[m.focus] = v
}

// activate is the button press: deploy, create another, or try again.
func (m StudioModel) activate() (tea.Model, tea.Cmd) {
	switch m.status.State {
	case flow.Idle:
		m.inputErr = ""
		return m, m.submit()
	case flow.Confirmed:
		if err := m.cfg.Creation.Reset(); err == nil {
			m.inputs = [fieldCount]string{fieldSupply: flow.DefaultSupplyDisplay}
			m.focus = fieldName
			m.status = m.cfg.Creation.Status()
		}
	case flow.Failed:
		if err := m.cfg.Creation.Reset(); err == nil {
			m.status = m.cfg.Creation.Status()
		}
	}
	return m, nil
}

// ButtonLabel is the action button text for a flow state.
func ButtonLabel(s flow.State) string {
	switch s {
	case flow.Submitting:
		return "Waiting for signature..."
	case flow.Pending:
		return "Confirming transaction..."
	case flow.Confirmed:
		return "Token minted!"
	case flow.Failed:
		return "Try again"
	default:
		return "Deploy token"
	}
}

func (m StudioModel) View() string {
	if m.Quitting {
		return ""
	}
	var sb strings.Builder

	title := "  Confidential Token Studio"
	if m.cfg.Network != "" {
		title += "  ·  " + m.cfg.Network
	}
	sb.WriteString(StyleTitle.Render(title) + "\n")
	if m.cfg.Identity != "" {
		sb.WriteString("  " + Meta("Connected as ") + Addr(m.cfg.Identity) + "\n\n")
	} else {
		sb.WriteString("  " + Warn("No wallet connected") + "\n\n")
	}

	sb.WriteString(m.formView() + "\n")
	sb.WriteString(m.statusView())
	sb.WriteString(m.galleryView())

	sb.WriteString("\n" + StyleMeta.Render("  [ Tab / ↑↓ ] field   [ Enter ] "+
		strings.ToLower(m.actionHint())+"   [ Esc ] quit") + "\n")
	return sb.String()
}

func (m StudioModel) actionHint() string {
	switch m.status.State {
	case flow.Confirmed:
		return "Create another token"
	case flow.Failed:
		return "Try again"
	case flow.Idle:
		return "Deploy token"
	}
	return "wait"
}

func (m StudioModel) formView() string {
	var sb strings.Builder
	editable := m.status.State == flow.Idle
	for f := fieldName; f < fieldCount; f++ {
		prefix := "    "
		val := m.inputs[f]
		if f == m.focus && editable {
			prefix = "  ▸ "
			val += "█"
		}
		sb.WriteString(fmt.Sprintf("%s%s %s\n", prefix, Meta(fmt.Sprintf("%-16s", fieldLabels[f])), Val(val)))
	}

	label := "[ " + ButtonLabel(m.status.State) + " ]"
	sb.WriteString("\n    " + StateStyle(m.status.State).Render(label) + "\n")

	box := StyleBorder
	if editable {
		box = StyleFocusBorder
	}
	return box.Render(sb.String())
}

func (m StudioModel) statusView() string {
	var sb strings.Builder
	if m.inputErr != "" {
		sb.WriteString("  " + Warn(m.inputErr) + "\n")
	}
	if m.status.Ref != "" && (m.status.State == flow.Pending || m.status.State == flow.Confirmed || m.status.State == flow.Failed) {
		sb.WriteString("  " + Meta("Transaction ") + Addr(m.status.Ref) + "\n")
		if m.cfg.TxURL != nil {
			if link := m.cfg.TxURL(m.status.Ref); link != "" {
				sb.WriteString("  " + Hint(link) + "\n")
			}
		}
	}
	switch m.status.State {
	case flow.Confirmed:
		if m.status.Record != nil {
			sb.WriteString(RecordBlock("Token minted!", *m.status.Record) + "\n")
		}
	case flow.Failed:
		sb.WriteString("  " + Err(m.status.Message) + "\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m StudioModel) galleryView() string {
	var sb strings.Builder
	if m.galleryErr != "" {
		sb.WriteString("  " + Err("Could not load tokens: "+m.galleryErr) + "\n")
		return sb.String()
	}

	sb.WriteString(StyleHeader.Render(fmt.Sprintf("  All tokens (%d)", len(m.snap.All))) + "\n")
	if len(m.snap.All) == 0 {
		sb.WriteString("  " + Meta("No tokens created yet.") + "\n")
	} else {
		sb.WriteString(TokenTable(m.snap.All).Render())
	}

	if m.snap.Identity != nil {
		sb.WriteString("\n" + StyleHeader.Render(fmt.Sprintf("  Your tokens (%d)", len(m.snap.Mine))) + "\n")
		if len(m.snap.Mine) == 0 {
			sb.WriteString("  " + Meta("You have not created any tokens.") + "\n")
		} else {
			sb.WriteString(TokenTable(m.snap.Mine).Render())
		}
	}
	return sb.String()
}

// RunStudio runs the studio full-screen until the user quits or ctx ends.
func RunStudio(ctx context.Context, cfg StudioConfig) error {
	m := NewStudio(ctx, cfg)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	return nil
}
