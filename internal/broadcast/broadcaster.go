// Package broadcast fans successful mutations out to the staff devices of
// a tenant. One logical channel per tenant; delivery is at-most-once and
// best-effort; a device that was disconnected resubscribes and pulls a
// full resync instead of expecting replay.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/pkg/events"
	"github.com/aforo/aforo/pkg/logger"
)

type Broadcaster struct {
	bus events.EventBus
}

func NewBroadcaster(bus events.EventBus) *Broadcaster {
	return &Broadcaster{bus: bus}
}

// publish never fails the mutation that triggered it: a dead bus costs a
// missed push, which the resync path already covers.
func (b *Broadcaster) publish(ctx context.Context, ev events.ChangeEvent) {
	if err := b.bus.Publish(ctx, events.ChangeSubject(ev.TenantID), ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish change event",
			"error", err, "entity_type", ev.EntityType, "entity_id", ev.EntityID)
	}
}

// AttendanceChanged announces a successful increment with the new counts.
func (b *Broadcaster) AttendanceChanged(ctx context.Context, tenantID string, res *domain.AttendanceResult) {
	b.publish(ctx, events.ChangeEvent{
		EntityType:    events.EntityReservation,
		EntityID:      res.ReservationID,
		TenantID:      tenantID,
		ChangedFields: []string{"attendance_count", "status"},
		Fields: map[string]any{
			"attendance_count": res.AttendanceCount,
			"capacity":         res.Capacity,
			"excess":           res.Excess,
			"status":           string(res.Status),
		},
		ServerTimestamp: time.Now(),
	})
}

// ReservationChanged announces a manual edit, creation or cancellation.
func (b *Broadcaster) ReservationChanged(ctx context.Context, tenantID, id string, changedFields []string, fields map[string]any) {
	b.publish(ctx, events.ChangeEvent{
		EntityType:      events.EntityReservation,
		EntityID:        id,
		TenantID:        tenantID,
		ChangedFields:   changedFields,
		Fields:          fields,
		ServerTimestamp: time.Now(),
	})
}

// GuestPassRedeemed announces the winning redemption of a pass.
func (b *Broadcaster) GuestPassRedeemed(ctx context.Context, tenantID, passID string, guestCount int) {
	b.publish(ctx, events.ChangeEvent{
		EntityType:    events.EntityGuestPass,
		EntityID:      passID,
		TenantID:      tenantID,
		ChangedFields: []string{"redeemed", "redeemed_at"},
		Fields: map[string]any{
			"redeemed":    true,
			"guest_count": guestCount,
		},
		ServerTimestamp: time.Now(),
	})
}

// WalkInRecorded announces an appended walk-in.
func (b *Broadcaster) WalkInRecorded(ctx context.Context, tenantID, id string, personCount int) {
	b.publish(ctx, events.ChangeEvent{
		EntityType:      events.EntityWalkIn,
		EntityID:        id,
		TenantID:        tenantID,
		ChangedFields:   []string{"person_count"},
		Fields:          map[string]any{"person_count": personCount},
		ServerTimestamp: time.Now(),
	})
}

// Subscribe delivers a tenant's change events until the subscription is
// released. Used by the SSE feed handler.
func (b *Broadcaster) Subscribe(tenantID string, handler func(events.ChangeEvent)) (events.Subscription, error) {
	return b.bus.Subscribe(events.ChangeSubject(tenantID), func(msg *events.Message) {
		var ev events.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Error("Dropping malformed change event", "error", err, "subject", msg.Subject)
			return
		}
		handler(ev)
	})
}
