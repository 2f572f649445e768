package domain

import "context"

// ScheduleResetter clears external collection-schedule state when a
// subscription is reactivated on the enhanced path. The real scheduler lives
// outside the billing core; the default binding is a no-op.
type ScheduleResetter interface {
	Reset(ctx context.Context, subscriptionID string) error
}

type NoOpScheduleResetter struct{}

func (NoOpScheduleResetter) Reset(ctx context.Context, subscriptionID string) error { return nil }
