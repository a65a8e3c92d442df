package events

import (
	"errors"
	"testing"
	"time"

	"github.com/silkyclouds/Autokong/internal/models"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventRunView)

	view := models.NewRunView("job-1", true)
	view.Progress = &models.Progress{Current: 1, Total: 4, StepID: models.StepRename}
	bus.PublishRunView(3, view)

	select {
	case received := <-ch:
		ev, ok := received.(*RunViewEvent)
		if !ok {
			t.Fatal("Expected RunViewEvent")
		}
		if ev.View.JobID != "job-1" {
			t.Errorf("Expected job id 'job-1', got '%s'", ev.View.JobID)
		}
		if ev.Generation != 3 {
			t.Errorf("Expected generation 3, got %d", ev.Generation)
		}
		if ev.View.Progress.Fraction() != 0.5 {
			t.Errorf("Expected progress 0.5, got %f", ev.View.Progress.Fraction())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventCurrentJob)
	ch2 := bus.Subscribe(EventCurrentJob)

	bus.PublishCurrentJob(models.CurrentJob{JobID: "abc"})

	received1 := false
	received2 := false

	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("Not all subscribers received the event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	currentCh := bus.Subscribe(EventCurrentJob)
	historyCh := bus.Subscribe(EventHistoryRefreshed)

	bus.PublishCurrentJob(models.CurrentJob{})

	select {
	case <-currentCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Current-job subscriber didn't receive event")
	}

	select {
	case <-historyCh:
		t.Error("History subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.PublishCurrentJob(models.CurrentJob{})
	bus.PublishRunState(1, "job-1", StateStarted, models.StatusRunning, nil)

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventCurrentJob)

	for i := 0; i < 10; i++ {
		bus.PublishCurrentJob(models.CurrentJob{JobID: "x"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:

	if count != 2 {
		t.Errorf("Expected the 2 buffered events, got %d", count)
	}
	if dropped := bus.GetDroppedEventCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}
	if reset := bus.ResetDroppedEventCount(); reset != 8 || bus.GetDroppedEventCount() != 0 {
		t.Errorf("Reset returned %d, counter now %d", reset, bus.GetDroppedEventCount())
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventRunState)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	// Publishing after close should not panic
	bus.PublishRunState(1, "job", StateFinished, models.StatusOK, nil)

	late := bus.Subscribe(EventRunState)
	if _, ok := <-late; ok {
		t.Error("Subscribing to a closed bus should return a closed channel")
	}
}

func TestEventBus_NilPublish(t *testing.T) {
	var bus *EventBus
	bus.PublishCurrentJob(models.CurrentJob{})
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventHistoryRefreshed)
	bus.Unsubscribe(EventHistoryRefreshed, ch)
	bus.PublishHistory(nil, nil)

	select {
	case <-ch:
		t.Error("Unsubscribed channel received an event")
	case <-time.After(20 * time.Millisecond):
	}

	all := bus.SubscribeAll()
	bus.UnsubscribeAll(all)
	bus.PublishHistory(nil, nil)

	select {
	case <-all:
		t.Error("Unsubscribed all-events channel received an event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}

func TestConvenienceMethods(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	logCh := bus.Subscribe(EventLog)
	stateCh := bus.Subscribe(EventRunState)
	historyCh := bus.Subscribe(EventHistoryRefreshed)

	bus.PublishLog(WarnLevel, "audit unavailable", "job-7", nil)

	select {
	case event := <-logCh:
		log, ok := event.(*LogEvent)
		if !ok {
			t.Fatal("Expected LogEvent")
		}
		if log.Message != "audit unavailable" || log.JobID != "job-7" {
			t.Errorf("Unexpected log event %+v", log)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for log event")
	}

	failure := errors.New("connection refused")
	bus.PublishRunState(2, "job-7", StateFailed, models.StatusRunning, failure)

	select {
	case event := <-stateCh:
		state, ok := event.(*RunStateEvent)
		if !ok {
			t.Fatal("Expected RunStateEvent")
		}
		if state.State != StateFailed || !errors.Is(state.Err, failure) {
			t.Errorf("Unexpected state event %+v", state)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for state event")
	}

	bus.PublishHistory([]models.HistoryEntry{{ID: "a"}, {ID: "b"}}, nil)

	select {
	case event := <-historyCh:
		h, ok := event.(*HistoryRefreshedEvent)
		if !ok {
			t.Fatal("Expected HistoryRefreshedEvent")
		}
		if len(h.Entries) != 2 {
			t.Errorf("Expected 2 entries, got %d", len(h.Entries))
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for history event")
	}
}
