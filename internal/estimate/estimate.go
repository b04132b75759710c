// Package estimate computes effective per-client service averages and
// projected waits from a barber's queue snapshot and recent finished history.
package estimate

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"barberq/internal/models"
)

// MinRemainderMinutes is the floor on the remaining time of a service in
// progress, so projections never reach zero or go negative while a client is
// still in the chair.
const MinRemainderMinutes = 2

type HistoryStore interface {
	ListFinishedEntries(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error)
}

type Config struct {
	WindowDays        int
	MaxSamples        int
	MinSamples        int
	DefaultAvgMinutes int
}

type Engine struct {
	store      HistoryStore
	cache      *Cache
	windowDays int
	maxSamples int
	minSamples int
	defaultAvg int
}

func New(store HistoryStore, cfg Config, cache *Cache) *Engine {
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 14
	}
	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = 50
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 3
	}
	defaultAvg := cfg.DefaultAvgMinutes
	if defaultAvg <= 0 {
		defaultAvg = 30
	}
	return &Engine{
		store:      store,
		cache:      cache,
		windowDays: windowDays,
		maxSamples: maxSamples,
		minSamples: minSamples,
		defaultAvg: defaultAvg,
	}
}

// EffectiveAvg returns the barber's per-client service duration in whole
// minutes: the observed average over the recent finished window when enough
// samples qualify, else the barber's configured default. A cache miss or
// history read failure falls back to the configured value so estimation never
// blocks or fails a caller.
func (e *Engine) EffectiveAvg(ctx context.Context, barber models.Barber) int {
	fallback := barber.AvgMinutes
	if fallback <= 0 {
		fallback = e.defaultAvg
	}

	if e.cache != nil {
		if avg, ok := e.cache.Get(ctx, barber.TenantID, barber.BarberID); ok {
			return avg
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -e.windowDays)
	samples, err := e.store.ListFinishedEntries(ctx, barber.TenantID, barber.BarberID, since, e.maxSamples)
	if err != nil {
		log.Printf("estimate history read barber=%s: %v", barber.BarberID, err)
		return fallback
	}

	avg, count := ServiceAvgMinutes(samples)
	if count < e.minSamples {
		return fallback
	}
	if e.cache != nil {
		e.cache.Set(ctx, barber.TenantID, barber.BarberID, avg)
	}
	return avg
}

// HistorySamples returns the finished entries inside the estimation window,
// shared by the average computation and the reporting stats.
func (e *Engine) HistorySamples(ctx context.Context, tenantID, barberID string) ([]models.QueueEntry, error) {
	since := time.Now().UTC().AddDate(0, 0, -e.windowDays)
	return e.store.ListFinishedEntries(ctx, tenantID, barberID, since, e.maxSamples)
}

// Invalidate drops the cached average for a barber; called after a finish so
// the new sample is picked up on the next read.
func (e *Engine) Invalidate(ctx context.Context, tenantID, barberID string) {
	if e.cache != nil {
		e.cache.Delete(ctx, tenantID, barberID)
	}
}

// ServiceAvgMinutes is the arithmetic mean of started-to-finished durations
// across entries carrying both timestamps, rounded to the nearest minute.
func ServiceAvgMinutes(samples []models.QueueEntry) (int, int) {
	var total float64
	count := 0
	for _, entry := range samples {
		if entry.StartedAt == nil || entry.FinishedAt == nil {
			continue
		}
		total += entry.FinishedAt.Sub(*entry.StartedAt).Minutes()
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return int(math.Round(total / float64(count))), count
}

// WaitedAvgMinutes is the mean created-to-started wait, used for reporting.
func WaitedAvgMinutes(samples []models.QueueEntry) (int, int) {
	var total float64
	count := 0
	for _, entry := range samples {
		if entry.StartedAt == nil {
			continue
		}
		total += entry.StartedAt.Sub(entry.CreatedAt).Minutes()
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return int(math.Round(total / float64(count))), count
}

// OrderWaiting returns the waiting entries of a snapshot in service order:
// priority entries first, then by ascending position within each class.
func OrderWaiting(snapshot []models.QueueEntry) []models.QueueEntry {
	var waiting []models.QueueEntry
	for _, entry := range snapshot {
		if entry.Status == models.StatusWaiting {
			waiting = append(waiting, entry)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		if waiting[i].IsPriority != waiting[j].IsPriority {
			return waiting[i].IsPriority
		}
		return waiting[i].Position < waiting[j].Position
	})
	return waiting
}

func attendingEntry(snapshot []models.QueueEntry) (models.QueueEntry, bool) {
	for _, entry := range snapshot {
		if entry.Status == models.StatusAttending {
			return entry, true
		}
	}
	return models.QueueEntry{}, false
}

func remainderMinutes(attending models.QueueEntry, avg int, now time.Time) int {
	elapsed := 0
	if attending.StartedAt != nil {
		elapsed = int(math.Round(now.Sub(*attending.StartedAt).Minutes()))
	}
	remaining := avg - elapsed
	if remaining < MinRemainderMinutes {
		return MinRemainderMinutes
	}
	return remaining
}

// ProjectedWaitForEntry estimates the minutes until the given entry reaches
// the chair, from a snapshot of its barber's active queue.
func ProjectedWaitForEntry(entry models.QueueEntry, snapshot []models.QueueEntry, avg int, now time.Time) int {
	switch entry.Status {
	case models.StatusWaiting:
		ahead := 0
		for _, w := range OrderWaiting(snapshot) {
			if w.EntryID == entry.EntryID {
				break
			}
			ahead++
		}
		wait := ahead * avg
		if attending, ok := attendingEntry(snapshot); ok {
			wait += remainderMinutes(attending, avg, now)
		}
		return wait
	case models.StatusAttending:
		return remainderMinutes(entry, avg, now)
	default:
		return 0
	}
}

// ProjectedTotalWait is the barber's full projected backlog: one average per
// waiting entry plus the remainder of any service in progress. Computed with
// the same remainder formula as per-entry projections so totals and per-item
// sums stay coherent.
func ProjectedTotalWait(snapshot []models.QueueEntry, avg int, now time.Time) int {
	waiting := 0
	for _, entry := range snapshot {
		if entry.Status == models.StatusWaiting {
			waiting++
		}
	}
	total := waiting * avg
	if attending, ok := attendingEntry(snapshot); ok {
		total += remainderMinutes(attending, avg, now)
	}
	return total
}
