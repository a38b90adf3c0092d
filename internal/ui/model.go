// Package ui implements the Bubbletea TUI: a half-block waveform with the
// live position marker, a header with file info and keyboard/mouse transport.
package ui

import (
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"audioplot.dev/internal/render"
	"audioplot.dev/internal/transport"
)

// Screen rows around the plot.
const (
	headerRows = 2
	footerRows = 2
)

// Transport step sizes.
const (
	seekStep     = 1.0
	longSeekStep = 5.0
	volumeStep   = 0.05
	panStep      = 0.25
	zoomIn       = 0.5
	zoomOut      = 2.0
)

type tickMsg time.Time

// Model is the Bubbletea model wrapping a transport controller.
type Model struct {
	controller *transport.Controller
	presenter  *Presenter
	timer      *FrameTimer
	status     transport.Status
	err        error
	quitting   bool
	width      int
	height     int
}

// NewModel creates a Model. The controller must have been built with
// presenter as its Presenter and timer.Bind as its NewTimer.
func NewModel(c *transport.Controller, presenter *Presenter, timer *FrameTimer) Model {
	return Model{
		controller: c,
		presenter:  presenter,
		timer:      timer,
		status:     c.Status(),
	}
}

// Init starts the frame timer and requests the terminal size.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), tea.WindowSize())
}

func (m Model) tickCmd() tea.Cmd {
	interval := m.timer.Interval()
	if interval <= 0 {
		interval = render.DefaultInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses, mouse clicks, ticks and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.handleKey(msg)
		if m.quitting {
			return m, tea.Quit
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tickMsg:
		m.timer.Fire()
		m.status = m.controller.Status()
		return m, m.tickCmd()
	}

	m.status = m.controller.Status()
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	var err error
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return
	case " ", "p":
		err = m.controller.TogglePause()
	case "enter":
		err = m.controller.Play()
	case "s":
		err = m.controller.Stop()
	case "left":
		err = m.controller.SeekBy(-seekStep)
	case "right":
		err = m.controller.SeekBy(seekStep)
	case "shift+left", "pgup":
		err = m.controller.SeekBy(-longSeekStep)
	case "shift+right", "pgdown":
		err = m.controller.SeekBy(longSeekStep)
	case "home":
		err = m.controller.Seek(0)
	case "up":
		err = m.controller.SetVolume(min(m.status.Volume+volumeStep, 1))
	case "down":
		err = m.controller.SetVolume(max(m.status.Volume-volumeStep, 0))
	case "+", "=":
		m.controller.Zoom(zoomIn)
	case "-":
		m.controller.Zoom(zoomOut)
	case "0":
		m.controller.ZoomAll()
	case "[":
		m.controller.Pan(-panStep)
	case "]":
		m.controller.Pan(panStep)
	case "m":
		err = m.controller.MarkHere("")
	case "x":
		m.controller.RemoveNearestMarker()
	case "c":
		m.controller.ClearMarkers()
	default:
		return
	}
	m.setErr(err)
}

// handleMouse maps a left click to a seek and a right click to a marker at
// the clicked column. The wheel zooms.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		return
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.controller.Zoom(zoomIn)
		return
	case tea.MouseButtonWheelDown:
		m.controller.Zoom(zoomOut)
		return
	}

	row := msg.Y - headerRows
	if row < 0 || row >= m.plotRows() {
		return
	}
	switch msg.Button {
	case tea.MouseButtonLeft:
		m.setErr(m.controller.SeekToX(msg.X))
	case tea.MouseButtonRight:
		m.setErr(m.controller.MarkAtX(msg.X))
	}
}

// plotRows is the number of text rows left for the waveform.
func (m Model) plotRows() int {
	return max(m.height-headerRows-footerRows, 1)
}

// resize gives the plot the full terminal width and two pixel rows per
// text row.
func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	size := render.Size{Width: m.width, Height: m.plotRows() * 2}
	if _, err := m.controller.Resize(size); err != nil {
		m.setErr(err)
		return
	}
	slog.Debug("plot resized", "width", size.Width, "height", size.Height)
}

func (m *Model) setErr(err error) {
	if err == nil {
		m.err = nil
		return
	}
	if errors.Is(err, transport.ErrNoFile) {
		return
	}
	slog.Debug("transport command failed", "error", err)
	m.err = err
}
