package models

// DeliveryStatus is the per-message delivery state.
type DeliveryStatus string

const (
	DeliveryStatusUnknown   DeliveryStatus = ""
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusRead, DeliveryStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusRead || s == DeliveryStatusFailed
}
