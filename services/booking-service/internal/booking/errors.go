package booking

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNotFound        = errors.New("not found")
	ErrTokenNotFound   = errors.New("confirmation token not found")
	ErrPartyMismatch   = errors.New("token does not belong to the claimed party")
	ErrSlotUnavailable = errors.New("slot not available")
	ErrDuplicateSlot   = errors.New("slot start already exists")
)
