package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"barberq/internal/queue"
)

// BoardNotifier pushes a fresh board snapshot to subscribers whenever the
// scheduler reports a queue change. It satisfies queue.Notifier.
type BoardNotifier struct {
	hub    *Hub
	boards *queue.Views
}

type boardEnvelope struct {
	Type      string      `json:"type"`
	Board     queue.Board `json:"board"`
	BarberID  string      `json:"barber_id"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewBoardNotifier(h *Hub, boards *queue.Views) *BoardNotifier {
	return &BoardNotifier{hub: h, boards: boards}
}

func (n *BoardNotifier) QueueChanged(tenantID, barberID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	board, err := n.boards.Board(ctx, tenantID)
	if err != nil {
		log.Printf("board snapshot error tenant=%s: %v", tenantID, err)
		return
	}
	payload, err := json.Marshal(boardEnvelope{
		Type:      "board.updated",
		Board:     board,
		BarberID:  barberID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("board marshal error tenant=%s: %v", tenantID, err)
		return
	}
	n.hub.Broadcast(payload, Subscription{TenantID: tenantID, BarberID: barberID})
}
