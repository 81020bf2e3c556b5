package command

import (
	"github.com/google/uuid"

	"github.com/flowmint/txfabric/validation"
)

// Notification channels.
var notificationChannels = []string{"email", "sms", "push"}

// SendNotification delivers one message to one user over a channel, built
// from a stored template.
type SendNotification struct {
	Base
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	TemplateID     string `json:"template_id"`
	Subject        string `json:"subject,omitempty"`
	Body           string `json:"body,omitempty"`
}

func (c SendNotification) Kind() Kind          { return KindSendNotification }
func (c SendNotification) AggregateID() string { return c.NotificationID }

func (c SendNotification) Validate() error {
	return validation.New().
		RequiredUUID("notification_id", c.NotificationID).
		Required("user_id", c.UserID).
		Required("channel", c.Channel).
		OneOf("channel", c.Channel, notificationChannels).
		Required("template_id", c.TemplateID).
		MaxLength("subject", c.Subject, 200).
		Err()
}

// BulkNotification fans one message out to many users. It is never handled
// directly: Expand constructs one SendNotification per target and the
// dispatcher runs each through the full pipeline with per-item isolation.
type BulkNotification struct {
	Base
	UserIDs    []string `json:"user_ids"`
	Channel    string   `json:"channel"`
	TemplateID string   `json:"template_id"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
}

func (c BulkNotification) Kind() Kind { return KindBulkNotification }

// AggregateID returns the batch's command id; individual notifications get
// their own aggregate ids on expansion.
func (c BulkNotification) AggregateID() string { return c.CommandID }

func (c BulkNotification) Validate() error {
	v := validation.New().
		NotEmptySlice("user_ids", len(c.UserIDs)).
		Required("channel", c.Channel).
		OneOf("channel", c.Channel, notificationChannels).
		Required("template_id", c.TemplateID).
		MaxLength("subject", c.Subject, 200)
	for _, id := range c.UserIDs {
		if id == "" {
			v.AddViolation("user_ids", "must not contain empty entries")
			break
		}
	}
	return v.Err()
}

// Expand constructs one SendNotification per target user. Every
// sub-command carries the batch's correlation id in metadata so all
// resulting events trace back to this batch.
func (c BulkNotification) Expand() []SendNotification {
	correlationID := c.CommandID
	if c.Meta != nil && c.Meta[MetaCorrelationID] != "" {
		correlationID = c.Meta[MetaCorrelationID]
	}

	subs := make([]SendNotification, 0, len(c.UserIDs))
	for _, userID := range c.UserIDs {
		meta := map[string]string{MetaCorrelationID: correlationID}
		for k, v := range c.Meta {
			if k != MetaCorrelationID {
				meta[k] = v
			}
		}

		subs = append(subs, SendNotification{
			Base:           NewBaseWithMeta(meta),
			NotificationID: uuid.New().String(),
			UserID:         userID,
			Channel:        c.Channel,
			TemplateID:     c.TemplateID,
			Subject:        c.Subject,
			Body:           c.Body,
		})
	}
	return subs
}
