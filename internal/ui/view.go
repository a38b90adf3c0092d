package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audioplot.dev/internal/transport"
)

const helpText = "space pause  s stop  ←/→ seek  +/- zoom  [/] pan  m mark  x unmark  q quit"

// View renders the header, the plot and the status line.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderTitle(),
		m.renderInfo(),
	}
	rows := m.presenter.Rows()
	for i := 0; i < m.plotRows(); i++ {
		if i < len(rows) {
			sections = append(sections, rows[i])
		} else {
			sections = append(sections, "")
		}
	}
	sections = append(sections, m.renderStatus(), m.renderHelp())
	return strings.Join(sections, "\n")
}

func (m Model) renderTitle() string {
	title := titleStyle.Render("audioplot")
	if m.status.File == "" {
		return title + " " + infoStyle.Render("no file")
	}
	return title + " " + fileStyle.Render(m.status.File)
}

// renderInfo is the summary shown when a file is opened.
func (m Model) renderInfo() string {
	s := m.status
	if s.State == transport.NoFile {
		return ""
	}
	parts := []string{
		fmt.Sprintf("%.3f sec.", s.Duration),
		fmt.Sprintf("%d Hz", s.SampleRate),
		channelLabel(s.Channels),
	}
	if s.Format != "" {
		parts = append([]string{s.Format}, parts...)
	}
	if s.Device != "" {
		parts = append(parts, s.Device)
	}
	return infoStyle.Render(strings.Join(parts, " · "))
}

func channelLabel(n int) string {
	switch n {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	}
	return fmt.Sprintf("%d ch", n)
}

func (m Model) renderStatus() string {
	s := m.status

	var state string
	switch s.State {
	case transport.Playing:
		state = playingStyle.Render("▶ " + s.State.String())
	case transport.Paused:
		state = pausedStyle.Render("❚❚ " + s.State.String())
	default:
		state = stoppedStyle.Render("■ " + s.State.String())
	}

	readout := m.presenter.Readout()
	if readout == "" {
		readout = fmt.Sprintf("Time: %.3f sec.", s.Seconds)
	}
	parts := []string{state, timeStyle.Render(readout)}
	if mr := m.presenter.MarkerReadout(); mr != "" {
		parts = append(parts, markerStyle.Render(mr))
	}
	parts = append(parts, infoStyle.Render(fmt.Sprintf("vol %d%%", int(s.Volume*100+0.5))))
	if s.Stats.Underruns > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d underruns", s.Stats.Underruns)))
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(m.err.Error()))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderHelp() string {
	help := helpText
	if m.width > 0 && lipgloss.Width(help) > m.width {
		help = "q quit"
	}
	return helpStyle.Render(help)
}

// Run shows the TUI on out until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model, in io.Reader, out io.Writer) error {
	prog := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
