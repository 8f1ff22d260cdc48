// Package guard keeps concurrent webhook deliveries of the same message from
// creating it twice.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
)

// Backend is a key-value store with atomic set-if-absent.
type Backend interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// DedupeMarker marks a source id of an inbox as being processed for a
// bounded window. Inboxes never share markers: two connected numbers see the
// same message id for the two ends of one conversation.
type DedupeMarker struct {
	backend Backend
	ttl     time.Duration
}

func NewDedupeMarker(backend Backend) *DedupeMarker {
	return &DedupeMarker{backend: backend, ttl: constants.DedupeMarkerTTL}
}

func markerKey(inboxID int64, sourceID string) string {
	return fmt.Sprintf(constants.MessageSourceKeyFormat, inboxID, sourceID)
}

// TryAcquire sets the marker for sourceID in inboxID. It returns false when
// another delivery already holds it.
func (d *DedupeMarker) TryAcquire(ctx context.Context, inboxID int64, sourceID string) (bool, error) {
	if sourceID == "" {
		return true, nil
	}
	ok, err := d.backend.SetNX(ctx, markerKey(inboxID, sourceID), "1", d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to set dedupe marker: %w", err)
	}
	return ok, nil
}

func (d *DedupeMarker) Release(ctx context.Context, inboxID int64, sourceID string) error {
	if sourceID == "" {
		return nil
	}
	if err := d.backend.Delete(ctx, markerKey(inboxID, sourceID)); err != nil {
		return fmt.Errorf("failed to clear dedupe marker: %w", err)
	}
	return nil
}
