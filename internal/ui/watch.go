package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// maxFeedRows caps how many tokens the feed keeps.
const maxFeedRows = 200

// FeedTokensMsg carries tokens found by one poll and the count it saw.
type FeedTokensMsg struct {
	Records []registry.TokenRecord
	Count   uint64
}

// FeedErrMsg reports a failed poll. Polling continues.
type FeedErrMsg struct{ Err error }

type feedTickMsg struct{}
type feedPollMsg struct{}

// WatchModel is a live feed of newly created tokens, newest first. It polls
// the registry count and fetches only the indices it has not seen.
type WatchModel struct {
	ctx      context.Context
	reg      registry.Registry
	interval time.Duration

	Title    string
	Rows     []registry.TokenRecord
	Seen     uint64
	Fetching bool
	ErrMsg   string
	LastPoll time.Time
	cursor   int
	frame    int
	Quitting bool
}

// NewWatch returns a feed over reg that polls every interval.
func NewWatch(ctx context.Context, reg registry.Registry, title string, interval time.Duration) WatchModel {
	return WatchModel{ctx: ctx, reg: reg, Title: title, interval: interval}
}

func feedSpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return feedTickMsg{} })
}

// PollTokens fetches every token from index seen up to the current count.
func PollTokens(ctx context.Context, reg registry.Registry, seen uint64) tea.Cmd {
	return func() tea.Msg {
		count, err := reg.TokenCount(ctx)
		if err != nil {
			return FeedErrMsg{err}
		}
		var recs []registry.TokenRecord
		for i := seen; i < count; i++ {
			rec, err := reg.Token(ctx, i)
			if err != nil {
				return FeedErrMsg{err}
			}
			recs = append(recs, *rec)
		}
		return FeedTokensMsg{Records: recs, Count: count}
	}
}

func (m WatchModel) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return feedPollMsg{} })
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(feedSpinTick(), PollTokens(m.ctx, m.reg, 0))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.Rows)-1 {
				m.cursor++
			}
		}

	case feedTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, feedSpinTick()

	case feedPollMsg:
		m.Fetching = true
		return m, PollTokens(m.ctx, m.reg, m.Seen)

	case FeedTokensMsg:
		m.Fetching = false
		m.ErrMsg = ""
		m.LastPoll = time.Now()
		// Newest first.
		for _, rec := range msg.Records {
			m.Rows = append([]registry.TokenRecord{rec}, m.Rows...)
		}
		if len(m.Rows) > maxFeedRows {
			m.Rows = m.Rows[:maxFeedRows]
		}
		if msg.Count > m.Seen {
			m.Seen = msg.Count
		}
		return m, m.schedulePoll()

	case FeedErrMsg:
		m.Fetching = false
		m.ErrMsg = msg.Err.Error()
		return m, m.schedulePoll()
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.Quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("◆ Live tokens  ·  "+m.Title) + "\n")

	switch {
	case m.ErrMsg != "":
		sb.WriteString(StyleError.Render("✗ "+m.ErrMsg) + "\n\n")
	case m.Fetching:
		sb.WriteString(StyleInfo.Render(spinnerFrames[m.frame]+" polling...") + "\n\n")
	case !m.LastPoll.IsZero():
		sb.WriteString(StyleMeta.Render(fmt.Sprintf("  %d token(s) · last checked %s", m.Seen, m.LastPoll.Format("15:04:05"))) + "\n\n")
	default:
		sb.WriteString(StyleMeta.Render("  connecting...") + "\n\n")
	}

	const (
		wIdx  = 6
		wName = 20
		wSym  = 8
		wAddr = 14
	)
	sb.WriteString(StyleHeader.Render(
		fit("#", wIdx)+"  "+fit("NAME", wName)+"  "+fit("SYMBOL", wSym)+"  "+fit("TOKEN", wAddr)+"  "+"CREATOR") + "\n")

	if len(m.Rows) == 0 {
		sb.WriteString(StyleMeta.Render("  Waiting for tokens...") + "\n")
	}
	for i, rec := range m.Rows {
		idx := m.Seen - uint64(i)
		line := fit(fmt.Sprintf("%d", idx), wIdx) + "  " +
			fit(rec.Name, wName) + "  " +
			fit(rec.Symbol, wSym) + "  " +
			fit(TruncateAddr(rec.TokenAddress.Hex()), wAddr) + "  " +
			TruncateAddr(rec.Creator.Hex())
		if i == m.cursor {
			sb.WriteString(StyleSelected.Render(line) + "\n")
		} else {
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString("\n" + StyleMeta.Render("[ ↑↓ ] navigate   [ q ] quit") + "\n")
	return sb.String()
}

// RunWatch runs the feed full-screen until the user quits or ctx ends.
func RunWatch(ctx context.Context, reg registry.Registry, title string, interval time.Duration) error {
	p := tea.NewProgram(NewWatch(ctx, reg, title, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
