// Package tui provides the terminal practice dialog and review dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/notedeck/internal/practice"
	"github.com/conorfennell/notedeck/internal/review"
)

// CompleteFunc marks the practiced note as reviewed.
type CompleteFunc func(ctx context.Context, noteID string) (review.Outcome, error)

type loadedMsg struct {
	err error
}

type completedMsg struct {
	outcome review.Outcome
	err     error
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	optionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Underline(true)
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	wrongStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	noticeStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4D4F")).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#FF4D4F")).
			Padding(0, 1)
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// PracticeModel is the Bubble Tea practice dialog for one note.
type PracticeModel struct {
	ctx      context.Context
	engine   *practice.Engine
	noteID   string
	complete CompleteFunc

	spinner    spinner.Model
	cursor     int
	notice     string
	outcome    *review.Outcome
	loading    bool // a start or retry command is in flight
	completing bool

	width  int
	height int
}

// NewPracticeModel builds the dialog. complete may be nil, which hides
// "mark complete".
func NewPracticeModel(ctx context.Context, engine *practice.Engine, noteID string, complete CompleteFunc) *PracticeModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return &PracticeModel{
		ctx:      ctx,
		engine:   engine,
		noteID:   noteID,
		complete: complete,
		spinner:  sp,
	}
}

// Outcome is set once the note was marked complete.
func (m *PracticeModel) Outcome() *review.Outcome {
	return m.outcome
}

// Init implements tea.Model.
func (m *PracticeModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(false))
}

func (m *PracticeModel) start(retry bool) tea.Cmd {
	m.cursor = 0
	m.notice = ""
	m.loading = true
	engine, ctx, noteID := m.engine, m.ctx, m.noteID
	return func() tea.Msg {
		var err error
		if retry {
			_, err = engine.Retry(ctx)
		} else {
			_, err = engine.Start(ctx, noteID)
		}
		return loadedMsg{err: err}
	}
}

// Update implements tea.Model.
func (m *PracticeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case loadedMsg:
		// The engine already holds the result.
		m.loading = false
		return m, nil
	case completedMsg:
		m.completing = false
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		m.outcome = &msg.outcome
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *PracticeModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" || key == "esc" {
		m.engine.Close()
		return m, tea.Quit
	}
	if key == "x" {
		m.notice = ""
		return m, nil
	}

	snap := m.engine.Snapshot()
	switch snap.State {
	case practice.StateError:
		if key == "r" {
			return m, tea.Batch(m.spinner.Tick, m.start(true))
		}
	case practice.StateFinished:
		switch key {
		case "r":
			if m.completing {
				return m, nil
			}
			m.outcome = nil
			return m, tea.Batch(m.spinner.Tick, m.start(true))
		case "c":
			if m.complete != nil && m.outcome == nil && !m.completing {
				m.completing = true
				complete, ctx, noteID := m.complete, m.ctx, m.noteID
				return m, func() tea.Msg {
					out, err := complete(ctx, noteID)
					return completedMsg{outcome: out, err: err}
				}
			}
		}
	case practice.StateActive:
		m.handleActiveKey(key, snap.Session)
	}
	return m, nil
}

func (m *PracticeModel) handleActiveKey(key string, sess practice.Session) {
	q := sess.Question(sess.Current())
	var err error
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(q.Options)-1 {
			m.cursor++
		}
	case "enter", " ":
		_, err = m.engine.Select(sess.Current(), m.cursor)
	case "v":
		_, err = m.engine.Reveal(sess.Current())
	case "right", "n", "l":
		_, err = m.engine.Advance()
		m.cursor = 0
	case "left", "p", "h":
		_, err = m.engine.Retreat()
		m.cursor = 0
	case "f":
		_, err = m.engine.Finish()
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if opt := int(key[0] - '1'); opt < len(q.Options) {
				m.cursor = opt
				_, err = m.engine.Select(sess.Current(), opt)
			}
		}
	}
	if err != nil {
		m.notice = err.Error()
	} else {
		m.notice = ""
	}
}

// View implements tea.Model.
func (m *PracticeModel) View() string {
	snap := m.engine.Snapshot()
	var b strings.Builder
	b.WriteString(titleStyle.Render("Practice: "+m.noteID) + "\n\n")

	switch snap.State {
	case practice.StateIdle, practice.StateLoading:
		b.WriteString(m.spinner.View() + " Loading questions...")
	case practice.StateError:
		b.WriteString(noticeStyle.Render(errorText(snap.Err)) + "\n\n")
		b.WriteString(footerStyle.Render("r retry · q close"))
	case practice.StateActive:
		b.WriteString(m.renderQuestion(snap.Session))
	case practice.StateFinished:
		b.WriteString(m.renderFinished(snap.Session))
	case practice.StateClosed:
		b.WriteString("Closed.")
	}

	if m.notice != "" {
		b.WriteString("\n\n" + noticeStyle.Render(m.notice) + " " + footerStyle.Render("x dismiss"))
	}

	content := dialogStyle.Render(b.String())
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *PracticeModel) renderQuestion(sess practice.Session) string {
	i := sess.Current()
	q := sess.Question(i)
	locked, isLocked := sess.Answer(i)
	selected, hasSelection := sess.Selection(i)

	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d\n", i+1, sess.Len())
	b.WriteString(promptStyle.Render(q.Prompt) + "\n\n")

	for j, o := range q.Options {
		marker := "  "
		style := optionStyle
		switch {
		case isLocked && o.IsCorrect:
			marker, style = "✓ ", correctStyle
		case isLocked && j == locked:
			marker, style = "✗ ", wrongStyle
		case hasSelection && j == selected:
			marker = "• "
		}
		line := fmt.Sprintf("%s%d. %s", marker, j+1, o.Description)
		if j == m.cursor && !isLocked {
			style = cursorStyle
		}
		b.WriteString(style.Render(line) + "\n")
	}

	keys := []string{"↑/↓ move", "enter select"}
	if sess.Mode() == practice.RevealThenLock && !isLocked {
		keys = append(keys, "v check")
	}
	if i > 0 {
		keys = append(keys, "← previous")
	}
	if sess.IsLast() {
		keys = append(keys, "→ finish")
	} else {
		keys = append(keys, "→ next")
	}
	keys = append(keys, "q close")
	b.WriteString("\n" + footerStyle.Render(strings.Join(keys, " · ")))
	return b.String()
}

func (m *PracticeModel) renderFinished(sess practice.Session) string {
	var b strings.Builder
	b.WriteString(promptStyle.Render("Practice Complete!") + "\n")
	fmt.Fprintf(&b, "Score: %d/%d\n", sess.Score(), sess.Len())

	if m.outcome != nil {
		b.WriteString("\n" + completionText(*m.outcome) + "\n\n")
		b.WriteString(footerStyle.Render("q close"))
		return b.String()
	}

	keys := []string{"r try again"}
	if m.complete != nil {
		keys = append(keys, "c mark complete")
	}
	keys = append(keys, "q close")
	b.WriteString("\n" + footerStyle.Render(strings.Join(keys, " · ")))
	return b.String()
}

func completionText(out review.Outcome) string {
	switch {
	case out.StreakUpdated && out.Streak.Count == 1:
		return "Marked complete. New streak started! 1 day"
	case out.StreakUpdated:
		return fmt.Sprintf("Marked complete. Streak updated! %d days", out.Streak.Count)
	case out.RemainingDue > 0:
		return fmt.Sprintf("Marked complete. %d due reviews left today.", out.RemainingDue)
	default:
		return "Marked complete."
	}
}

func errorText(err error) string {
	switch {
	case err == nil:
		return "Something went wrong."
	case errors.Is(err, practice.ErrNoQuestions):
		return "No practice questions available for this note."
	case errors.Is(err, practice.ErrFetchFailed):
		return "Failed to load practice questions."
	default:
		return err.Error()
	}
}
