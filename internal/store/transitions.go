package store

import "barberq/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"start":     {models.StatusWaiting},
	"finish":    {models.StatusAttending},
	"cancel":    {models.StatusWaiting, models.StatusAttending},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
