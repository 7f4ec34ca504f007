package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/shorts/pkg/engine"
	usagepkg "github.com/germanamz/shorts/pkg/modeladapter/usage"
	"github.com/germanamz/shorts/pkg/pipeline"
)

func testModel(cancel context.CancelFunc) progressModel {
	m := newProgressModel("Go 1.25", []string{"scriptwriter_agent", "visualizer_agent"}, cancel)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m
}

func update(t *testing.T, m progressModel, msg tea.Msg) (progressModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	pm, ok := next.(progressModel)
	require.True(t, ok)

	return pm, cmd
}

func TestProgressStages(t *testing.T) {
	m := testModel(nil)
	assert.Contains(t, m.View(), "Go 1.25")

	m, _ = update(t, m, eventMsg{Kind: pipeline.EventStageStart, Stage: 0, Agent: "scriptwriter_agent"})
	assert.Equal(t, stageRunning, m.rows[0].status)
	assert.Equal(t, stagePending, m.rows[1].status)

	m, _ = update(t, m, eventMsg{
		Kind:   pipeline.EventStageEnd,
		Stage:  0,
		Output: &pipeline.StageOutput{Duration: 2 * time.Second, Fallback: true},
	})
	assert.Equal(t, stageDone, m.rows[0].status)
	assert.Equal(t, 2*time.Second, m.rows[0].duration)

	view := m.View()
	assert.Contains(t, view, markOK)
	assert.Contains(t, view, "2.0s")
	assert.Contains(t, view, "(fallback)")

	m, _ = update(t, m, eventMsg{Kind: pipeline.EventStageError, Stage: 1, Err: errors.New("boom")})
	assert.Equal(t, stageFailed, m.rows[1].status)
	assert.Contains(t, m.View(), markFail)
}

func TestProgressIgnoresRunEvents(t *testing.T) {
	m := testModel(nil)

	m, _ = update(t, m, eventMsg{Kind: pipeline.EventRunStart, Stage: -1})
	m, _ = update(t, m, eventMsg{Kind: pipeline.EventStageStart, Stage: 7})

	for _, row := range m.rows {
		assert.Equal(t, stagePending, row.status)
	}
}

func TestProgressDoneQuits(t *testing.T) {
	m := testModel(nil)

	m, cmd := update(t, m, runDoneMsg{result: pipeline.Result{Final: "package"}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.done)
	assert.Equal(t, "package", m.result.Final)
}

func TestProgressDoneShowsError(t *testing.T) {
	m := testModel(nil)

	m, _ = update(t, m, runDoneMsg{err: errors.New("stage 1 (scriptwriter_agent): quota")})
	assert.Contains(t, m.View(), "quota")

	c := testModel(nil)
	c, _ = update(t, c, runDoneMsg{err: context.Canceled})
	assert.NotContains(t, c.View(), "canceled")
}

func TestProgressCtrlCCancels(t *testing.T) {
	cancelled := false
	m := testModel(func() { cancelled = true })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.True(t, cancelled)
	assert.Contains(t, m.View(), "cancelling")
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer

	writeEvent(&buf, pipeline.Event{Kind: pipeline.EventStageStart, Stage: 0, Agent: "scriptwriter_agent"}, 3)
	writeEvent(&buf, pipeline.Event{
		Kind:   pipeline.EventStageEnd,
		Stage:  0,
		Agent:  "scriptwriter_agent",
		Output: &pipeline.StageOutput{Duration: time.Second},
	}, 3)
	writeEvent(&buf, pipeline.Event{Kind: pipeline.EventStageError, Stage: 1, Agent: "visualizer_agent", Err: errors.New("boom")}, 3)
	writeEvent(&buf, pipeline.Event{Kind: pipeline.EventRunEnd, Stage: -1}, 3)

	assert.Equal(t,
		"[1/3] scriptwriter_agent...\n"+
			"[1/3] "+markOK+" scriptwriter_agent (1.0s)\n"+
			"[2/3] "+markFail+" visualizer_agent: boom\n",
		buf.String())
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer

	writeSummary(&buf, pipeline.Result{RunID: "abc", Duration: 3 * time.Second}, []engine.BackendUsage{
		{Backend: "openrouter", Calls: 3, Tokens: usagepkg.TokenCount{InputTokens: 120, OutputTokens: 80}},
		{Backend: "google"},
	})

	assert.Equal(t, "run abc finished in 3.0s\nopenrouter: 3 calls, 120 in / 80 out tokens\n", buf.String())
}
