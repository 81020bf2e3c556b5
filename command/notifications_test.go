package command

import (
	"testing"

	apperrors "github.com/flowmint/txfabric/errors"
)

func validBulk() BulkNotification {
	return BulkNotification{
		Base:       NewBase(),
		UserIDs:    []string{"user-1", "user-2", "user-3"},
		Channel:    "email",
		TemplateID: "welcome",
		Subject:    "Welcome",
	}
}

func TestSendNotification_Validation(t *testing.T) {
	cmd := SendNotification{Base: NewBase(), Channel: "fax"}

	err := cmd.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	fields := map[string]bool{}
	for _, v := range apperrors.Violations(err) {
		fields[v.Field] = true
	}
	for _, want := range []string{"notification_id", "user_id", "channel", "template_id"} {
		if !fields[want] {
			t.Errorf("missing violation for %s", want)
		}
	}
}

func TestBulkNotification_Valid(t *testing.T) {
	if err := validBulk().Validate(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestBulkNotification_EmptyTargets(t *testing.T) {
	cmd := validBulk()
	cmd.UserIDs = nil
	if cmd.Validate() == nil {
		t.Error("empty target list must be rejected")
	}
}

func TestBulkNotification_ExpandCreatesOnePerTarget(t *testing.T) {
	bulk := validBulk()
	subs := bulk.Expand()

	if len(subs) != 3 {
		t.Fatalf("expected 3 sub-commands, got %d", len(subs))
	}

	seen := map[string]bool{}
	for i, sub := range subs {
		if sub.UserID != bulk.UserIDs[i] {
			t.Errorf("sub %d: expected user %s, got %s", i, bulk.UserIDs[i], sub.UserID)
		}
		if sub.Channel != bulk.Channel || sub.TemplateID != bulk.TemplateID {
			t.Errorf("sub %d must inherit channel and template", i)
		}
		if sub.NotificationID == "" || seen[sub.NotificationID] {
			t.Errorf("sub %d must get a unique notification id", i)
		}
		seen[sub.NotificationID] = true
		if err := sub.Validate(); err != nil {
			t.Errorf("expanded sub-command must be valid: %v", err)
		}
	}
}

func TestBulkNotification_ExpandPropagatesCorrelation(t *testing.T) {
	bulk := validBulk()
	subs := bulk.Expand()

	for i, sub := range subs {
		if sub.Metadata()[MetaCorrelationID] != bulk.ID() {
			t.Errorf("sub %d: correlation id must be the batch command id", i)
		}
	}
}

func TestBulkNotification_ExpandKeepsExistingCorrelation(t *testing.T) {
	bulk := validBulk()
	bulk.Meta = map[string]string{MetaCorrelationID: "corr-outer", "tenant": "t-1"}

	subs := bulk.Expand()
	for i, sub := range subs {
		if sub.Metadata()[MetaCorrelationID] != "corr-outer" {
			t.Errorf("sub %d: caller-supplied correlation id must win", i)
		}
		if sub.Metadata()["tenant"] != "t-1" {
			t.Errorf("sub %d: other metadata must propagate", i)
		}
	}
}
