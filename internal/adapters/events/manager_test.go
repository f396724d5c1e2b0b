package events

import (
	"context"
	"testing"
	"time"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestManager_SubscribeByRun(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	ch, cancel := m.Subscribe("r-1")
	defer cancel()

	m.Publish(domain.Event{RunID: "r-1", Kind: domain.EventRunStarted})
	m.Publish(domain.Event{RunID: "r-2", Kind: domain.EventRunStarted})

	event := receiveEvent(t, ch)
	assert.Equal(t, "r-1", event.RunID)

	select {
	case unexpected := <-ch:
		t.Fatalf("received event for another run: %+v", unexpected)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_SubscribeAllRuns(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	ch, cancel := m.Subscribe("")
	defer cancel()

	m.Publish(domain.Event{RunID: "r-1", Kind: domain.EventRunStarted})
	m.Publish(domain.Event{RunID: "r-2", Kind: domain.EventRunCompleted})

	first := receiveEvent(t, ch)
	second := receiveEvent(t, ch)
	assert.Equal(t, "r-1", first.RunID)
	assert.Equal(t, "r-2", second.RunID)
}

func TestManager_CancelStopsDelivery(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	ch, cancel := m.Subscribe("r-1")
	cancel()

	m.Publish(domain.Event{RunID: "r-1", Kind: domain.EventRunStarted})

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestManager_PublishNeverBlocks(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	_, cancel := m.Subscribe("r-1")
	defer cancel()

	// No reader drains the channel; publishing far past the buffer must
	// still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Publish(domain.Event{RunID: "r-1", Kind: domain.EventLLMCall})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestManager_CloseClosesSubscribers(t *testing.T) {
	m := NewManager(nil)

	ch, _ := m.Subscribe("r-1")
	require.NoError(t, m.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after manager close")
	}
}

type fakeEventRepo struct {
	appended []domain.Event
	err      error
}

func (f *fakeEventRepo) Append(ctx context.Context, event *domain.Event) error {
	if f.err != nil {
		return f.err
	}
	if event.ID == "" {
		event.ID = "generated"
	}
	f.appended = append(f.appended, *event)
	return nil
}

func (f *fakeEventRepo) ListByRun(ctx context.Context, runID string) ([]domain.Event, error) {
	return f.appended, nil
}

func TestRecorder_PersistsBeforeFanout(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	repo := &fakeEventRepo{}
	recorder := NewRecorder(repo, m, nil)

	ch, cancel := m.Subscribe("r-1")
	defer cancel()

	err := recorder.Emit(context.Background(), &domain.Event{RunID: "r-1", Kind: domain.EventRunStarted})
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)

	event := receiveEvent(t, ch)
	assert.Equal(t, domain.EventRunStarted, event.Kind)
	assert.NotEmpty(t, event.ID)
}

func TestRecorder_AppendFailureSkipsFanout(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	repo := &fakeEventRepo{err: assert.AnError}
	recorder := NewRecorder(repo, m, nil)

	ch, cancel := m.Subscribe("r-1")
	defer cancel()

	err := recorder.Emit(context.Background(), &domain.Event{RunID: "r-1", Kind: domain.EventRunStarted})
	require.Error(t, err)

	select {
	case <-ch:
		t.Fatal("unpersisted event must not be fanned out")
	case <-time.After(50 * time.Millisecond):
	}
}
