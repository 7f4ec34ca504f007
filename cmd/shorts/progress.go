package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/shorts/pkg/pipeline"
)

type stageStatus int

const (
	stagePending stageStatus = iota
	stageRunning
	stageDone
	stageFailed
)

type stageRow struct {
	agent    string
	status   stageStatus
	started  time.Time
	duration time.Duration
	fallback bool
	err      error
}

// eventMsg carries a pipeline event into the program.
type eventMsg pipeline.Event

// runDoneMsg is sent once the pipeline returns.
type runDoneMsg struct {
	result pipeline.Result
	err    error
}

// progressModel shows one line per stage with a spinner on the running one.
type progressModel struct {
	topic      string
	rows       []stageRow
	spinner    spinner.Model
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	result     pipeline.Result
	err        error
	now        func() time.Time
}

func newProgressModel(topic string, agents []string, cancel context.CancelFunc) progressModel {
	rows := make([]stageRow, len(agents))
	for i, a := range agents {
		rows[i] = stageRow{agent: a}
	}

	return progressModel{
		topic:   topic,
		rows:    rows,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		cancel:  cancel,
		now:     time.Now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			// Wait for the pipeline to observe cancellation.
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case eventMsg:
		m.apply(pipeline.Event(msg))
		return m, nil

	case runDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *progressModel) apply(e pipeline.Event) {
	if e.Stage < 0 || e.Stage >= len(m.rows) {
		return
	}
	row := &m.rows[e.Stage]

	switch e.Kind {
	case pipeline.EventStageStart:
		row.status = stageRunning
		row.started = m.now()
	case pipeline.EventStageEnd:
		row.status = stageDone
		if e.Output != nil {
			row.duration = e.Output.Duration
			row.fallback = e.Output.Fallback
		}
	case pipeline.EventStageError:
		row.status = stageFailed
		row.duration = m.now().Sub(row.started)
		row.err = e.Err
	}
}

func (m progressModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("🎬 "+m.topic) + "\n")

	for i, row := range m.rows {
		prefix := fmt.Sprintf(" %d/%d ", i+1, len(m.rows))
		name := stageNameStyle.Render(padRight(row.agent, 20))

		switch row.status {
		case stagePending:
			sb.WriteString(dimStyle.Render(prefix+markPending+" "+padRight(row.agent, 20)) + "\n")
		case stageRunning:
			elapsed := m.now().Sub(row.started)
			sb.WriteString(prefix + m.spinner.View() + name + dimStyle.Render(fmtDuration(elapsed)) + "\n")
		case stageDone:
			note := fmtDuration(row.duration)
			if row.fallback {
				note += " " + warnStyle.Render("(fallback)")
			}
			sb.WriteString(prefix + okStyle.Render(markOK) + " " + name + dimStyle.Render(note) + "\n")
		case stageFailed:
			sb.WriteString(prefix + failStyle.Render(markFail) + " " + name + dimStyle.Render(fmtDuration(row.duration)) + "\n")
		}
	}

	if m.cancelling && !m.done {
		sb.WriteString(warnStyle.Render("cancelling...") + "\n")
	}
	if m.done && m.err != nil && !errors.Is(m.err, context.Canceled) {
		sb.WriteString(errorBlockStyle.Render(m.err.Error()) + "\n")
	}

	return sb.String()
}
