package booking

import "errors"

// Outcome errors. Every non-success outcome of the orchestrator maps to one of these.
var (
	ErrConfigDisabled           = errors.New("automatic booking is disabled")
	ErrNotEnoughPlayers         = errors.New("not enough players")
	ErrAlreadyBooked            = errors.New("week already booked")
	ErrNoSlotsAvailable         = errors.New("no slots available")
	ErrNoSuitableSlot           = errors.New("no suitable slot")
	ErrInsufficientPairedSlots  = errors.New("no two third pitches free at the same time")
	ErrExecutionFailed          = errors.New("booking execution failed")
	ErrPartialDualBookingFailed = errors.New("second pitch of dual booking failed")
	ErrPersistence              = errors.New("booking ledger write failed")
	ErrProviderUnavailable      = errors.New("slot provider unavailable")
)
