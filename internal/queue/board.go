package queue

import (
	"context"
	"sort"
	"time"

	"barberq/internal/estimate"
	"barberq/internal/models"
	"barberq/internal/store"
)

// Views builds the read-only projections served to unauthenticated polling
// clients. Reads take no barber lock; momentarily stale data is acceptable
// for display. Each read runs the consistency repair for the barbers it
// touches and returns the corrected status.
type Views struct {
	store      store.Store
	estimator  *estimate.Engine
	reconciler *Reconciler
	now        func() time.Time
}

func NewViews(st store.Store, estimator *estimate.Engine, reconciler *Reconciler) *Views {
	return &Views{
		store:      st,
		estimator:  estimator,
		reconciler: reconciler,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type BoardEntry struct {
	EntryID          string `json:"entry_id"`
	ClientName       string `json:"client_name"`
	Status           string `json:"status"`
	StatusColor      string `json:"status_color"`
	Position         int    `json:"position"`
	IsPriority       bool   `json:"is_priority"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

type BoardBarber struct {
	BarberID      string       `json:"barber_id"`
	Name          string       `json:"name"`
	PhotoURL      string       `json:"photo_url,omitempty"`
	Status        string       `json:"status"`
	StatusColor   string       `json:"status_color"`
	WaitingCount  int          `json:"waiting_count"`
	EstimatedWait int          `json:"estimated_wait_minutes"`
	Queue         []BoardEntry `json:"queue"`
}

type Board struct {
	TenantID    string        `json:"tenant_id"`
	Barbers     []BoardBarber `json:"barbers"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type Ticket struct {
	BoardEntry
	BarberID      string `json:"barber_id"`
	BarberName    string `json:"barber_name"`
	BarberStatus  string `json:"barber_status"`
	QueuePosition int    `json:"queue_position"`
}

// Board assembles the public queue board for a tenant: every active barber
// with its line in service order and freshly recomputed estimates.
func (v *Views) Board(ctx context.Context, tenantID string) (Board, error) {
	barbers, err := v.store.ListBarbers(ctx, tenantID, true)
	if err != nil {
		return Board{}, err
	}
	sort.Slice(barbers, func(i, j int) bool {
		return barbers[i].Name < barbers[j].Name
	})

	now := v.now()
	board := Board{TenantID: tenantID, GeneratedAt: now}
	for _, barber := range barbers {
		active, err := v.store.ListActiveEntries(ctx, tenantID, barber.BarberID)
		if err != nil {
			return Board{}, err
		}
		barber = v.reconciler.Repair(ctx, barber, active)
		avg := v.estimator.EffectiveAvg(ctx, barber)

		bb := BoardBarber{
			BarberID:      barber.BarberID,
			Name:          barber.Name,
			PhotoURL:      barber.PhotoURL,
			Status:        barber.Status,
			StatusColor:   barberColor(barber.Status),
			EstimatedWait: estimate.ProjectedTotalWait(active, avg, now),
		}

		ordered := orderForDisplay(active)
		for i, entry := range ordered {
			if entry.Status == models.StatusWaiting {
				bb.WaitingCount++
			}
			// Display position comes from the live service order, not the
			// stored column, so a stale row cannot misplace a client.
			bb.Queue = append(bb.Queue, BoardEntry{
				EntryID:          entry.EntryID,
				ClientName:       entry.ClientName,
				Status:           entry.Status,
				StatusColor:      entryColor(entry.Status),
				Position:         i + 1,
				IsPriority:       entry.IsPriority,
				EstimatedMinutes: estimate.ProjectedWaitForEntry(entry, active, avg, now),
			})
		}
		board.Barbers = append(board.Barbers, bb)
	}
	return board, nil
}

// Ticket is the per-entry lookup: the board projection for one entry plus
// its recomputed place in the service order.
func (v *Views) Ticket(ctx context.Context, tenantID, entryID string) (Ticket, error) {
	entry, err := v.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return Ticket{}, err
	}

	barber, err := v.store.GetBarber(ctx, tenantID, entry.BarberID)
	if err != nil {
		return Ticket{}, err
	}
	active, err := v.store.ListActiveEntries(ctx, tenantID, entry.BarberID)
	if err != nil {
		return Ticket{}, err
	}
	barber = v.reconciler.Repair(ctx, barber, active)

	avg := v.estimator.EffectiveAvg(ctx, barber)
	now := v.now()

	queuePosition := 0
	if entry.Status == models.StatusWaiting {
		for i, waiting := range estimate.OrderWaiting(active) {
			if waiting.EntryID == entry.EntryID {
				queuePosition = i + 1
				break
			}
		}
	}

	return Ticket{
		BoardEntry: BoardEntry{
			EntryID:          entry.EntryID,
			ClientName:       entry.ClientName,
			Status:           entry.Status,
			StatusColor:      entryColor(entry.Status),
			Position:         entry.Position,
			IsPriority:       entry.IsPriority,
			EstimatedMinutes: estimate.ProjectedWaitForEntry(entry, active, avg, now),
		},
		BarberID:      barber.BarberID,
		BarberName:    barber.Name,
		BarberStatus:  barber.Status,
		QueuePosition: queuePosition,
	}, nil
}

// BarberStats are the service and wait averages over the recent finished
// window, reported to staff dashboards.
type BarberStats struct {
	BarberID          string `json:"barber_id"`
	BarberName        string `json:"barber_name"`
	EffectiveAvg      int    `json:"effective_avg_minutes"`
	AvgServiceMinutes int    `json:"avg_service_minutes"`
	ServiceSamples    int    `json:"service_samples"`
	AvgWaitMinutes    int    `json:"avg_wait_minutes"`
	WaitSamples       int    `json:"wait_samples"`
}

func (v *Views) Stats(ctx context.Context, tenantID, barberID string) (BarberStats, error) {
	barber, err := v.store.GetBarber(ctx, tenantID, barberID)
	if err != nil {
		return BarberStats{}, err
	}
	samples, err := v.estimator.HistorySamples(ctx, tenantID, barberID)
	if err != nil {
		return BarberStats{}, err
	}

	serviceAvg, serviceN := estimate.ServiceAvgMinutes(samples)
	waitAvg, waitN := estimate.WaitedAvgMinutes(samples)
	return BarberStats{
		BarberID:          barber.BarberID,
		BarberName:        barber.Name,
		EffectiveAvg:      v.estimator.EffectiveAvg(ctx, barber),
		AvgServiceMinutes: serviceAvg,
		ServiceSamples:    serviceN,
		AvgWaitMinutes:    waitAvg,
		WaitSamples:       waitN,
	}, nil
}

// orderForDisplay shows the client in the chair first, then the waiting
// line in service order.
func orderForDisplay(active []models.QueueEntry) []models.QueueEntry {
	var ordered []models.QueueEntry
	for _, entry := range active {
		if entry.Status == models.StatusAttending {
			ordered = append(ordered, entry)
		}
	}
	return append(ordered, estimate.OrderWaiting(active)...)
}

func barberColor(status string) string {
	switch status {
	case models.BarberAvailable:
		return "green"
	case models.BarberBusy:
		return "red"
	default:
		return "gray"
	}
}

func entryColor(status string) string {
	switch status {
	case models.StatusWaiting:
		return "yellow"
	case models.StatusAttending:
		return "green"
	case models.StatusFinished:
		return "gray"
	default:
		return "red"
	}
}
