package store

import "errors"

var (
	ErrBarberNotFound       = errors.New("barber not found")
	ErrBarberInactive       = errors.New("barber inactive")
	ErrEntryNotFound        = errors.New("entry not found")
	ErrInvalidState         = errors.New("invalid entry state")
	ErrAlreadyAttending     = errors.New("entry already attending")
	ErrNotWaiting           = errors.New("entry not waiting")
	ErrDuplicateActiveEntry = errors.New("client already has an active entry")
	ErrNoBarberAvailable    = errors.New("no barber available")
	ErrSessionNotFound      = errors.New("session not found")
)
