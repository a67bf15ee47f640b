// Package fixprogress shows a running fix data pass in the terminal.
package fixprogress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/andstatus/appctx"
	"github.com/deemkeen/andstatus/checker"
	"github.com/deemkeen/andstatus/executor"
	"github.com/deemkeen/andstatus/ui/common"
	"github.com/deemkeen/andstatus/ui/header"
)

type ProgressMsg checker.Progress

type DoneMsg checker.Summary

type Model struct {
	header     header.Model
	spinner    spinner.Model
	countOnly  bool
	order      []string
	progress   map[string]checker.Progress
	summary    *checker.Summary
	cancel     func()
	cancelling bool
}

// New builds the model; cancel is called when the user aborts the pass.
func New(accounts int, countOnly bool, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(common.COLOR_MAGENTA))
	return Model{
		header:    header.Model{Width: 80, Title: "fix data", Accounts: accounts},
		spinner:   s,
		countOnly: countOnly,
		progress:  make(map[string]checker.Progress),
		cancel:    cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.header.Width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.summary != nil {
				return m, tea.Quit
			}
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
	case ProgressMsg:
		if _, ok := m.progress[msg.Checker]; !ok {
			m.order = append(m.order, msg.Checker)
		}
		m.progress[msg.Checker] = checker.Progress(msg)
	case DoneMsg:
		s := checker.Summary(msg)
		m.summary = &s
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header.View())
	b.WriteString("\n")

	caption := "Fixing data"
	if m.countOnly {
		caption = "Counting what needs fixing"
	}
	if m.summary == nil {
		caption = m.spinner.View() + " " + caption
	}
	b.WriteString(common.CaptionStyle.Render(caption))
	b.WriteString("\n")

	width := common.BarWidth(m.header.Width)
	for _, name := range m.order {
		p := m.progress[name]
		b.WriteString(fmt.Sprintf("  %-14s %s %d/%d\n", name, bar(p.Done, p.Total, width), p.Done, p.Total))
	}

	switch {
	case m.summary == nil && m.cancelling:
		b.WriteString(common.HelpStyle.Render("cancelling..."))
	case m.summary == nil:
		b.WriteString(common.HelpStyle.Render("q: cancel"))
	case m.summary.Err != nil:
		b.WriteString(common.ErrorStyle.Render(fmt.Sprintf("Stopped: %v (%d fixed so far)", m.summary.Err, m.summary.Total())))
	default:
		verb := "Fixed"
		if m.summary.CountOnly {
			verb = "Would fix"
		}
		b.WriteString(common.DoneStyle.Render(fmt.Sprintf("%s %d users and %d conversation items in %s",
			verb, m.summary.UsersFixed, m.summary.ConversationsFixed, m.summary.Duration.Round(time.Millisecond))))
	}
	b.WriteString("\n")
	return b.String()
}

func bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Run runs the pass exclusively while showing its progress, and returns its
// summary once both the pass and the screen are done.
func Run(ctx context.Context, app *appctx.Context, opts checker.Options) (checker.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(len(app.Accounts), opts.CountOnly, cancel))
	opts.Progress = func(pr checker.Progress) {
		p.Send(ProgressMsg(pr))
	}

	done := make(chan checker.Summary, 1)
	chk := app.Checker()
	go func() {
		var summary checker.Summary
		err := app.Pools.RunMaintenance(ctx, func(ctx context.Context) error {
			summary = chk.FixData(ctx, opts)
			return summary.Err
		})
		if errors.Is(err, executor.ErrPassRunning) {
			summary.Err = err
		}
		done <- summary
		p.Send(DoneMsg(summary))
	}()

	_, err := p.Run()
	cancel()
	return <-done, err
}
