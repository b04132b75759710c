package models

import "time"

type QueueEntry struct {
	EntryID          string     `json:"entry_id"`
	TenantID         string     `json:"tenant_id,omitempty"`
	BarberID         string     `json:"barber_id"`
	ClientID         *string    `json:"client_id,omitempty"`
	ClientName       string     `json:"client_name"`
	ClientPhone      string     `json:"client_phone,omitempty"`
	Status           string     `json:"status"`
	Position         int        `json:"position"`
	IsPriority       bool       `json:"is_priority"`
	EstimatedMinutes int        `json:"estimated_time_minutes"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusAttending = "attending"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
)

// Active reports whether the entry still occupies a queue slot.
func (e QueueEntry) Active() bool {
	return e.Status == StatusWaiting || e.Status == StatusAttending
}

type Barber struct {
	BarberID   string `json:"barber_id"`
	TenantID   string `json:"tenant_id,omitempty"`
	Name       string `json:"name"`
	PhotoURL   string `json:"photo_url,omitempty"`
	Status     string `json:"status"`
	AvgMinutes int    `json:"avg_time_minutes"`
	IsActive   bool   `json:"is_active"`
}

const (
	BarberAvailable = "available"
	BarberBusy      = "busy"
	BarberOffline   = "offline"
)

type Client struct {
	ClientID string `json:"client_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}
