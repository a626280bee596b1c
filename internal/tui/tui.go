package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"twittersphere/internal/ingest"
)

type progressMsg ingest.Progress

type doneMsg struct {
	summary ingest.Summary
	err     error
}

type progressPage struct {
	bar        progress.Model
	last       ingest.Progress
	done       *doneMsg
	cancel     context.CancelFunc
	cancelling bool
	width      int
}

func newProgressPage(cancel context.CancelFunc) progressPage {
	return progressPage{
		bar:    progress.New(progress.WithGradient(string(darkBlue()), string(lightBlue()))),
		cancel: cancel,
	}
}

// RunPrepare runs an ingestion job while rendering its progress. Interrupting
// the view cancels the job; the view stays up until the job has returned, so a
// merge in progress still completes.
func RunPrepare(ctx context.Context, opts ingest.Options) (ingest.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressPage(cancel))
	opts.Progress = func(pr ingest.Progress) { p.Send(progressMsg(pr)) }

	finished := make(chan doneMsg, 1)
	go func() {
		sum, err := ingest.Run(ctx, opts)
		res := doneMsg{summary: sum, err: err}
		finished <- res
		p.Send(res)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-finished
		if res.err != nil {
			return res.summary, res.err
		}
		return res.summary, err
	}
	res := <-finished
	return res.summary, res.err
}

func (m progressPage) Init() tea.Cmd {
	return nil
}

func (m progressPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width-4)
	case progressMsg:
		m.last = ingest.Progress(msg)
	case doneMsg:
		m.done = &msg
		return m, tea.Quit
	}
	return m, nil
}

func (m progressPage) percent() float64 {
	if m.last.BytesTotal <= 0 {
		return 0
	}
	return min(1, float64(m.last.BytesRead)/float64(m.last.BytesTotal))
}

func (m progressPage) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lightBlue()).Render("Preparing twittersphere store")

	stats := fmt.Sprintf("%s / %s read • %s pages • %s bundles • %s skipped • %d flushes",
		humanize.IBytes(uint64(m.last.BytesRead)),
		humanize.IBytes(uint64(m.last.BytesTotal)),
		humanize.Comma(int64(m.last.Pages)),
		humanize.Comma(int64(m.last.Bundles)),
		humanize.Comma(int64(m.last.Skipped)),
		m.last.Flushes)

	lines := []string{title, "", m.bar.ViewAs(m.percent()), stats, ""}
	switch {
	case m.done != nil && m.done.err != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(warnYellow()).Render("Failed: "+m.done.err.Error()))
	case m.done != nil:
		lines = append(lines, fmt.Sprintf("Done in %s", m.done.summary.Duration.Round(time.Millisecond)))
	case m.cancelling:
		lines = append(lines, lipgloss.NewStyle().Foreground(warnYellow()).Render("Cancelling, waiting for the current flush to finish..."))
	default:
		lines = append(lines, helpBar([]string{"ctrl+c cancel"}))
	}
	return strings.Join(lines, "\n") + "\n"
}
