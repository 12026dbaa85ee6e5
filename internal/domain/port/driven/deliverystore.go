package driven

import (
	"context"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// DeliveryStore is the idempotency ledger for webhook deliveries and poll
// observations: a write-once append log keyed by (repo_id, delivery_id),
// backed by a unique constraint so concurrent processes cannot both record
// the same delivery. Entries are retained indefinitely since redelivery
// windows are externally controlled.
type DeliveryStore interface {
	// Get returns the existing record for the delivery, or nil when the
	// delivery has not been processed.
	Get(ctx context.Context, repoID, deliveryID string) (*model.DeliveryRecord, error)

	// Record appends the processed delivery. When a concurrent writer won
	// the race, Record returns the winner's record and inserted=false; the
	// caller must replay that outcome instead of its own.
	Record(ctx context.Context, rec model.DeliveryRecord) (existing *model.DeliveryRecord, inserted bool, err error)
}
