package shared

import (
	"context"
	"fmt"
)

// EffectKind identifies the collaborator an Effect is addressed to.
type EffectKind string

const (
	EffectNotify EffectKind = "notify"
	EffectAudit  EffectKind = "audit"
)

// NotificationType classifies user-facing notifications.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is what a notification sink accepts.
type Notification struct {
	UserID  string           `json:"user_id"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`
}

// AuditRecord is what an audit sink accepts.
type AuditRecord struct {
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
}

// Effect is a side-effect instruction produced by the workflow core. The core
// never executes effects; the host applies them in slice order.
type Effect struct {
	Kind         EffectKind    `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	Audit        *AuditRecord  `json:"audit,omitempty"`
}

// Notify builds a notification effect.
func Notify(userID, title, message string, typ NotificationType) Effect {
	return Effect{
		Kind: EffectNotify,
		Notification: &Notification{
			UserID:  userID,
			Title:   title,
			Message: message,
			Type:    typ,
		},
	}
}

// Audit builds an audit effect.
func Audit(actorID, action, entityType, entityID string, oldValues, newValues map[string]any) Effect {
	return Effect{
		Kind: EffectAudit,
		Audit: &AuditRecord{
			ActorID:    actorID,
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			OldValues:  oldValues,
			NewValues:  newValues,
		},
	}
}

// Validate checks that the effect carries the payload its kind requires.
func (e Effect) Validate() error {
	switch e.Kind {
	case EffectNotify:
		if e.Notification == nil || e.Notification.UserID == "" {
			return fmt.Errorf("notify effect without recipient")
		}
	case EffectAudit:
		if e.Audit == nil || e.Audit.EntityID == "" {
			return fmt.Errorf("audit effect without entity")
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	return nil
}

// EntityKey returns "<entity_type>:<entity_id>" for audit effects and
// "user:<id>" for notifications. Dispatch order is preserved per key.
func (e Effect) EntityKey() string {
	switch {
	case e.Audit != nil:
		return e.Audit.EntityType + ":" + e.Audit.EntityID
	case e.Notification != nil:
		return "user:" + e.Notification.UserID
	}
	return ""
}

// Changes accumulates the effects and events of one core operation in
// emission order. Outcomes of every workflow package embed it.
type Changes struct {
	Effects []Effect
	Events  []Event
}

// Notify appends a notification effect.
func (c *Changes) Notify(userID, title, message string, typ NotificationType) {
	c.Effects = append(c.Effects, Notify(userID, title, message, typ))
}

// Audit appends an audit effect.
func (c *Changes) Audit(actorID, action, entityType, entityID string, oldValues, newValues map[string]any) {
	c.Effects = append(c.Effects, Audit(actorID, action, entityType, entityID, oldValues, newValues))
}

// Emit appends a domain event.
func (c *Changes) Emit(e Event) {
	c.Events = append(c.Events, e)
}

// Merge appends other's effects and events after c's own.
func (c *Changes) Merge(other Changes) {
	c.Effects = append(c.Effects, other.Effects...)
	c.Events = append(c.Events, other.Events...)
}

// NotificationSink delivers notification effects.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// AuditSink persists audit effects.
type AuditSink interface {
	Record(ctx context.Context, r AuditRecord) error
}
