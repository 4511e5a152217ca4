package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/figcoco/internal/orchestrator"
	"github.com/brensch/figcoco/internal/testutil"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drive feeds the task's messages into Update until it finishes.
func drive(t *testing.T, m *AppModel) {
	t.Helper()
	ch := m.uiMsgChan
	require.NotNil(t, ch)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-ch:
			m.Update(msg)
			if _, done := msg.(TaskFinishedMsg); done {
				return
			}
		case <-timeout:
			t.Fatal("task did not finish")
		}
	}
}

func fakeRun(ctx context.Context, observe orchestrator.Observer) (string, error) {
	observe(orchestrator.Progress{Kind: orchestrator.BatchStarted, Batch: 0, TotalBatches: 1, Archives: 2})
	observe(orchestrator.Progress{Kind: orchestrator.ArchiveExtracted, Archive: "/in/w1/out.zip"})
	observe(orchestrator.Progress{Kind: orchestrator.ArchiveExtracted, Archive: "/in/w2/out.zip"})
	observe(orchestrator.Progress{Kind: orchestrator.BatchPersisted, Batch: 0, TotalBatches: 1, Images: 6, Annotations: 12})
	return "6 images merged", nil
}

func TestRunTaskProgress(t *testing.T) {
	m := NewAppModel(context.Background(), []MenuItem{{Title: "Run aggregation", Task: fakeRun}}, testutil.DiscardLogger())
	t.Cleanup(func() { m.cancel(); m.wg.Wait() })

	m.Update(key("enter"))
	assert.Equal(t, RunningTask, m.State)
	drive(t, m)

	assert.Equal(t, ShowResult, m.State)
	assert.NoError(t, m.Err())
	require.Len(t, m.fileOrder, 2)
	for _, id := range m.fileOrder {
		assert.Equal(t, StatusMerged, m.fileProgress[id].Status)
	}
	assert.Equal(t, int64(1), m.overallCurrent)
	assert.Equal(t, int64(1), m.overallTotal)

	view := m.View()
	assert.Contains(t, view, "w1/out.zip")
	assert.Contains(t, view, "6 images merged")

	m.Update(key("enter"))
	assert.Equal(t, ShowMenu, m.State)
}

func TestRunTaskError(t *testing.T) {
	failing := func(ctx context.Context, observe orchestrator.Observer) (string, error) {
		observe(orchestrator.Progress{Kind: orchestrator.ArchiveExtracted, Archive: "/in/w1/out.zip", Err: errors.New("corrupt archive")})
		return "", errors.New("batch 0: corrupt archive")
	}
	m := NewAppModel(context.Background(), []MenuItem{{Title: "Run aggregation", Task: failing}}, testutil.DiscardLogger())
	t.Cleanup(func() { m.cancel(); m.wg.Wait() })

	m.Init()
	m.Update(key("enter"))
	drive(t, m)

	assert.Equal(t, ShowError, m.State)
	require.Error(t, m.Err())
	assert.Equal(t, StatusError, m.fileProgress["/in/w1/out.zip"].Status)
	assert.Contains(t, m.View(), "corrupt archive")
}

func TestAutoStart(t *testing.T) {
	m := NewAppModel(context.Background(), []MenuItem{{Title: "Run aggregation", Task: fakeRun}}, testutil.DiscardLogger()).StartWith(0)
	t.Cleanup(func() { m.cancel(); m.wg.Wait() })

	require.NotNil(t, m.Init())
	assert.Equal(t, RunningTask, m.State)
	drive(t, m)
	assert.Equal(t, ShowResult, m.State)
}

func TestMenuNavigationAndQuit(t *testing.T) {
	noop := func(context.Context, orchestrator.Observer) (string, error) { return "", nil }
	m := NewAppModel(context.Background(), []MenuItem{{Title: "Verify", Task: noop}, {Title: "Export", Task: noop}}, testutil.DiscardLogger())

	m.Update(key("down"))
	m.Update(key("down"))
	m.Update(key("down"))
	assert.Equal(t, 2, m.menuCursor, "cursor stops on Exit")
	assert.Contains(t, m.View(), "> ")

	m.Update(key("up"))
	assert.Equal(t, 1, m.menuCursor)

	m.Update(key("down"))
	_, cmd := m.Update(key("enter"))
	assert.NotNil(t, cmd)
	assert.True(t, m.Quitting)
	assert.Equal(t, Exiting, m.State)
	assert.Error(t, m.ctx.Err(), "quitting cancels running work")
}

func TestQuitCancelsRunningTask(t *testing.T) {
	started := make(chan struct{})
	blocking := func(ctx context.Context, _ orchestrator.Observer) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	m := NewAppModel(context.Background(), []MenuItem{{Title: "Run aggregation", Task: blocking}}, testutil.DiscardLogger())
	m.Update(key("enter"))
	<-started

	m.Update(key("q"))
	assert.Equal(t, Exiting, m.State)
	done := make(chan struct{})
	go func() { m.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task goroutine did not exit after quit")
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "w7/out.zip", displayName("/data/in/w7/out.zip"))
}
