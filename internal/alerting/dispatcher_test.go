package alerting

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNotificationCarriesTagAndText(t *testing.T) {
	n := NewNotification(testAlert(), decimal.RequireFromString("1.1"), testAlert().CreatedAt)
	if n.Tag != "rate-alert-a1" || n.Tag != Tag("a1") {
		t.Fatalf("unexpected tag %q", n.Tag)
	}
	if n.Title != "Rate alert EUR/USD" {
		t.Fatalf("unexpected title %q", n.Title)
	}
	if !strings.Contains(n.Body, "1.1000") || !strings.Contains(n.Body, "1.05") || !strings.Contains(n.Body, "above") {
		t.Fatalf("body should mention rate, threshold and direction: %q", n.Body)
	}
	if !strings.HasPrefix(n.Text(), n.Title+"\n"+n.Body) {
		t.Fatalf("unexpected text %q", n.Text())
	}
}

func TestDispatcherNoCapability(t *testing.T) {
	d := NewDispatcher(nil, nil, testLogger())
	res := d.Notify(context.Background(), testAlert(), decimal.NewFromInt(2))
	if d.Available() || len(res) != 1 || res[0].Outcome != OutcomeUnavailable || res.Delivered() != 0 {
		t.Fatalf("expected a single unavailable result, got %#v", res)
	}
}

func TestDispatcherPermissionStates(t *testing.T) {
	authorized := &fakeCapability{name: "ok", permission: PermissionAuthorized}
	pending := &fakeCapability{name: "pending", permission: PermissionUnauthorized, grant: PermissionAuthorized}
	missing := &fakeCapability{name: "missing", permission: PermissionUnavailable}
	failing := &fakeCapability{name: "failing", permission: PermissionAuthorized, deliverErr: errBoom}

	d := NewDispatcher([]Capability{authorized, pending, missing, failing}, nil, testLogger())
	res := d.Notify(context.Background(), testAlert(), decimal.RequireFromString("1.1"))

	want := map[string]Outcome{
		"ok":      OutcomeDelivered,
		"pending": OutcomePermissionRequested,
		"missing": OutcomeUnavailable,
		"failing": OutcomeFailed,
	}
	for _, r := range res {
		if want[r.Channel] != r.Outcome {
			t.Fatalf("channel %s: expected %s, got %s", r.Channel, want[r.Channel], r.Outcome)
		}
	}
	if res.Delivered() != 1 || len(authorized.delivered) != 1 {
		t.Fatalf("exactly one delivery expected, got %d", res.Delivered())
	}
	if authorized.delivered[0].Tag != "rate-alert-a1" {
		t.Fatalf("unexpected tag %q", authorized.delivered[0].Tag)
	}
	if pending.requests != 1 || len(pending.delivered) != 0 {
		t.Fatal("unauthorized channel must request permission and skip this cycle")
	}

	d.Notify(context.Background(), testAlert(), decimal.RequireFromString("1.2"))
	if len(pending.delivered) != 1 || pending.requests != 1 {
		t.Fatal("granted channel should deliver on the next cycle without asking again")
	}
	if got := d.Channels(); len(got) != 4 || got[0] != "ok" {
		t.Fatalf("unexpected channels %v", got)
	}
}

func TestDispatcherPermissionDenied(t *testing.T) {
	denied := &fakeCapability{name: "denied", permission: PermissionUnauthorized, grantErr: errBoom}
	d := NewDispatcher([]Capability{denied}, nil, testLogger())

	res := d.Notify(context.Background(), testAlert(), decimal.NewFromInt(2))
	if res[0].Outcome != OutcomePermissionRequested || res[0].Err == nil {
		t.Fatalf("expected permission request failure, got %#v", res[0])
	}
	if len(denied.delivered) != 0 {
		t.Fatal("nothing may be delivered without permission")
	}
}
