package estimate

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberq/internal/models"
)

type fakeHistory struct {
	listFinished func(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error)
}

func (f *fakeHistory) ListFinishedEntries(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
	return f.listFinished(ctx, tenantID, barberID, since, limit)
}

func finishedEntry(start time.Time, minutes int) models.QueueEntry {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return models.QueueEntry{
		Status:     models.StatusFinished,
		CreatedAt:  start.Add(-10 * time.Minute),
		StartedAt:  &start,
		FinishedAt: &end,
	}
}

func TestEffectiveAvgUsesHistory(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	history := &fakeHistory{
		listFinished: func(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
			return []models.QueueEntry{
				finishedEntry(base, 20),
				finishedEntry(base, 25),
				finishedEntry(base, 30),
			}, nil
		},
	}
	engine := New(history, Config{}, nil)

	avg := engine.EffectiveAvg(context.Background(), models.Barber{AvgMinutes: 45})
	if avg != 25 {
		t.Fatalf("expected observed average 25, got %d", avg)
	}
}

func TestEffectiveAvgFallsBackBelowMinSamples(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	history := &fakeHistory{
		listFinished: func(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
			return []models.QueueEntry{
				finishedEntry(base, 20),
				finishedEntry(base, 40),
			}, nil
		},
	}
	engine := New(history, Config{MinSamples: 3}, nil)

	avg := engine.EffectiveAvg(context.Background(), models.Barber{AvgMinutes: 45})
	if avg != 45 {
		t.Fatalf("expected configured average 45, got %d", avg)
	}
}

func TestEffectiveAvgFallsBackOnHistoryError(t *testing.T) {
	history := &fakeHistory{
		listFinished: func(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
			return nil, errors.New("boom")
		},
	}
	engine := New(history, Config{DefaultAvgMinutes: 30}, nil)

	avg := engine.EffectiveAvg(context.Background(), models.Barber{})
	if avg != 30 {
		t.Fatalf("expected default average 30, got %d", avg)
	}
}

func TestServiceAvgMinutesSkipsIncompleteSamples(t *testing.T) {
	base := time.Now().UTC()
	samples := []models.QueueEntry{
		finishedEntry(base, 30),
		{Status: models.StatusFinished, StartedAt: &base},
		{Status: models.StatusFinished},
	}
	avg, count := ServiceAvgMinutes(samples)
	if count != 1 {
		t.Fatalf("expected 1 usable sample, got %d", count)
	}
	if avg != 30 {
		t.Fatalf("expected average 30, got %d", avg)
	}
}

func TestOrderWaitingPriorityFirst(t *testing.T) {
	snapshot := []models.QueueEntry{
		{EntryID: "a", Status: models.StatusAttending, Position: 1},
		{EntryID: "b", Status: models.StatusWaiting, Position: 2},
		{EntryID: "c", Status: models.StatusWaiting, Position: 3, IsPriority: true},
		{EntryID: "d", Status: models.StatusWaiting, Position: 4},
	}

	waiting := OrderWaiting(snapshot)
	if len(waiting) != 3 {
		t.Fatalf("expected 3 waiting entries, got %d", len(waiting))
	}
	want := []string{"c", "b", "d"}
	for i, id := range want {
		if waiting[i].EntryID != id {
			t.Fatalf("expected %s at index %d, got %s", id, i, waiting[i].EntryID)
		}
	}
}

func TestProjectedWaitForWaitingEntry(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-10 * time.Minute)
	snapshot := []models.QueueEntry{
		{EntryID: "chair", Status: models.StatusAttending, Position: 1, StartedAt: &started},
		{EntryID: "first", Status: models.StatusWaiting, Position: 2},
		{EntryID: "second", Status: models.StatusWaiting, Position: 3},
	}

	// 30m average, 10m elapsed: 20m remainder plus one full service ahead.
	wait := ProjectedWaitForEntry(snapshot[2], snapshot, 30, now)
	if wait != 50 {
		t.Fatalf("expected 50 minute projection, got %d", wait)
	}

	wait = ProjectedWaitForEntry(snapshot[1], snapshot, 30, now)
	if wait != 20 {
		t.Fatalf("expected 20 minute projection, got %d", wait)
	}
}

func TestProjectedWaitRemainderFloor(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-90 * time.Minute)
	attending := models.QueueEntry{EntryID: "chair", Status: models.StatusAttending, StartedAt: &started}
	snapshot := []models.QueueEntry{
		attending,
		{EntryID: "first", Status: models.StatusWaiting, Position: 2},
	}

	if wait := ProjectedWaitForEntry(attending, snapshot, 30, now); wait != MinRemainderMinutes {
		t.Fatalf("expected floor %d for overrun service, got %d", MinRemainderMinutes, wait)
	}
	if wait := ProjectedWaitForEntry(snapshot[1], snapshot, 30, now); wait != MinRemainderMinutes {
		t.Fatalf("expected floor %d ahead of overrun service, got %d", MinRemainderMinutes, wait)
	}
}

func TestProjectedTotalWaitMatchesPerEntrySum(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-12 * time.Minute)
	snapshot := []models.QueueEntry{
		{EntryID: "chair", Status: models.StatusAttending, Position: 1, StartedAt: &started},
		{EntryID: "first", Status: models.StatusWaiting, Position: 2},
		{EntryID: "second", Status: models.StatusWaiting, Position: 3},
	}

	total := ProjectedTotalWait(snapshot, 30, now)
	last := ProjectedWaitForEntry(snapshot[2], snapshot, 30, now)
	if total != last+30 {
		t.Fatalf("total %d should exceed the last entry's wait %d by one average", total, last)
	}
}

func TestProjectedTotalWaitEmptyQueue(t *testing.T) {
	if total := ProjectedTotalWait(nil, 30, time.Now().UTC()); total != 0 {
		t.Fatalf("expected zero backlog, got %d", total)
	}
}
