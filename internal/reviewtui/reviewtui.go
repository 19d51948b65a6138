// Package reviewtui implements the interactive due-reviews queue for the
// `review` CLI command. Grounded on internal/tui/tui.go's bubbletea
// model/Init/Update/View shape and lipgloss styling, reworked from digest
// browsing to answering one spaced-repetition prompt at a time.
package reviewtui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smartrouter/internal/core"
	"smartrouter/internal/scheduler"
)

type viewMode int

const (
	viewQueue viewMode = iota
	viewPrompt
	viewDone
)

// model is the bubbletea state for one review session.
type model struct {
	sched *scheduler.Scheduler

	mode     viewMode
	queue    []*core.ReviewSchedule
	cursor   int
	answered int
	quitting bool

	lastStatus string
	errMessage string
}

// InitialModel loads the due queue and returns the starting TUI state.
func InitialModel(sched *scheduler.Scheduler, limit int) model {
	due, err := sched.GetDueReviews(scheduler.DueReviewsOptions{Limit: limit})
	m := model{sched: sched, mode: viewQueue}
	if err != nil {
		m.errMessage = err.Error()
		return m
	}
	m.queue = due
	if len(due) > 0 {
		m.mode = viewPrompt
	} else {
		m.mode = viewDone
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == viewPrompt {
			return m.updatePrompt(msg)
		}
		if m.mode == viewDone {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.queue) {
		m.mode = viewDone
		return m, nil
	}
	current := m.queue[m.cursor]

	var quality core.ReviewQuality
	switch msg.String() {
	case "1":
		quality = core.QualityForgot
	case "2":
		quality = core.QualityHard
	case "3":
		quality = core.QualityGood
	case "4":
		quality = core.QualityEasy
	default:
		return m, nil
	}

	updated, err := m.sched.ProcessReview(current.ConceptID, quality)
	if err != nil {
		m.errMessage = err.Error()
		return m, nil
	}
	m.lastStatus = fmt.Sprintf("%s -> interval %.0fd, ease %.2f", current.ConceptID, updated.Parameters.IntervalDays, updated.Parameters.EaseFactor)
	m.answered++
	m.cursor++
	if m.cursor >= len(m.queue) {
		m.mode = viewDone
	}
	return m, nil
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b string
	b += headerStyle.Render("SmartRouter — Due Reviews") + "\n\n"

	if m.errMessage != "" {
		b += errorStyle.Render("error: "+m.errMessage) + "\n\n"
	}

	switch m.mode {
	case viewDone:
		b += promptStyle.Render(fmt.Sprintf("Queue complete. Answered %d of %d.", m.answered, len(m.queue))) + "\n"
	case viewPrompt:
		current := m.queue[m.cursor]
		b += promptStyle.Render(fmt.Sprintf("[%d/%d] concept %s", m.cursor+1, len(m.queue), current.ConceptID)) + "\n"
		b += promptStyle.Render(fmt.Sprintf("status=%s ease=%.2f interval=%.0fd reps=%d",
			current.Status, current.Parameters.EaseFactor, current.Parameters.IntervalDays, current.Parameters.Repetitions)) + "\n\n"
		b += "  1: forgot   2: hard   3: good   4: easy\n"
		if m.lastStatus != "" {
			b += "\n" + statusStyle.Render("last: "+m.lastStatus) + "\n"
		}
	}

	b += "\n" + footerStyle.Render("press 1-4 to answer, q to quit")
	return b
}

// StartQueue launches the interactive review session for up to limit due
// concepts.
func StartQueue(sched *scheduler.Scheduler, limit int) error {
	p := tea.NewProgram(InitialModel(sched, limit))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "review session failed:", err)
		return err
	}
	return nil
}
