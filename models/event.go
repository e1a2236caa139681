package models

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ChangeEvent is one store-level change to an entity.
type ChangeEvent[T any] struct {
	Type   ChangeType `json:"eventType"`
	Entity T          `json:"entity"`
}

type BookingEvent = ChangeEvent[Booking]
