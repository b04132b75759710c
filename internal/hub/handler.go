package hub

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

// Handler returns the SockJS endpoint under prefix. Board displays and
// client phones subscribe by tenant (optionally narrowed to one barber)
// and receive board snapshots as the queue moves. No credentials are
// required, the board is public signage.
func Handler(h *Hub, prefix string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, Subscription{})
				continue
			}
			if parsed.TenantID == "" {
				continue
			}
			h.UpdateSubscription(client, Subscription{
				TenantID: parsed.TenantID,
				BarberID: parsed.BarberID,
			})
		}
	})
}
