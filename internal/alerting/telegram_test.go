package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type telegramStub struct {
	mu      sync.Mutex
	methods []string
	bodies  []map[string]any
	getMeOK bool
}

func (s *telegramStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		if !strings.HasPrefix(parts[1], "bottoken") {
			t.Errorf("path should carry the bot token, got %s", r.URL.Path)
		}

		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.methods = append(s.methods, method)
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()

		switch method {
		case "getMe":
			if !s.getMeOK {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"username": "ratewatch_bot"}})
		case "sendMessage":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 42}})
		case "editMessageText":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 42}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestTelegramChannelPermissionLifecycle(t *testing.T) {
	stub := &telegramStub{getMeOK: true}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	ch := NewTelegramChannel("token", "chat", srv.URL, time.Second, testLogger())
	ctx := context.Background()

	if ch.Permission(ctx) != PermissionUnauthorized {
		t.Fatal("unverified bot should be unauthorized")
	}
	granted, err := ch.RequestPermission(ctx)
	if err != nil || granted != PermissionAuthorized {
		t.Fatalf("getMe should authorize, got %s (%v)", granted, err)
	}
	if ch.Permission(ctx) != PermissionAuthorized {
		t.Fatal("verified bot should stay authorized")
	}

	if NewTelegramChannel("", "chat", srv.URL, time.Second, testLogger()).Permission(ctx) != PermissionUnavailable {
		t.Fatal("missing token means unavailable")
	}
}

type memoryGrants struct {
	mu     sync.Mutex
	values map[string]string
}

func (g *memoryGrants) LoadGrant(ctx context.Context, channel string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[channel], nil
}

func (g *memoryGrants) SaveGrant(ctx context.Context, channel, subject string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.values == nil {
		g.values = make(map[string]string)
	}
	g.values[channel] = subject
	return nil
}

func TestTelegramGrantSurvivesNewChannel(t *testing.T) {
	stub := &telegramStub{getMeOK: true}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	grants := &memoryGrants{}
	ctx := context.Background()

	first := NewTelegramChannel("token42:secret", "chat", srv.URL, time.Second, testLogger()).UseGrants(grants)
	d := NewDispatcher([]Capability{first}, nil, testLogger())
	n := NewNotification(testAlert(), decimal.RequireFromString("1.10"), time.Now())
	if res := d.Send(ctx, n); res[0].Outcome != OutcomePermissionRequested {
		t.Fatalf("first send should only verify the bot, got %#v", res)
	}
	if got := grants.values["telegram"]; got != "token42/chat" || strings.Contains(got, "secret") {
		t.Fatalf("grant should name bot and chat only, got %q", got)
	}

	second := NewTelegramChannel("token42:secret", "chat", srv.URL, time.Second, testLogger()).UseGrants(grants)
	d = NewDispatcher([]Capability{second}, nil, testLogger())
	if res := d.Send(ctx, n); res[0].Outcome != OutcomeDelivered {
		t.Fatalf("a restarted channel should reuse the grant, got %#v", res)
	}

	stub.mu.Lock()
	methods := append([]string(nil), stub.methods...)
	stub.mu.Unlock()
	if len(methods) != 2 || methods[0] != "getMe" || methods[1] != "sendMessage" {
		t.Fatalf("expected one getMe then one sendMessage, got %v", methods)
	}

	otherChat := NewTelegramChannel("token42:secret", "elsewhere", srv.URL, time.Second, testLogger()).UseGrants(grants)
	if otherChat.Permission(ctx) != PermissionUnauthorized {
		t.Fatal("a grant for another chat must not authorize")
	}
}

func TestTelegramChannelRejectedToken(t *testing.T) {
	stub := &telegramStub{getMeOK: false}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	ch := NewTelegramChannel("token", "chat", srv.URL, time.Second, testLogger())
	granted, err := ch.RequestPermission(context.Background())
	if err == nil || granted != PermissionUnauthorized {
		t.Fatalf("rejected token should stay unauthorized, got %s (%v)", granted, err)
	}
	if !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("error should carry the api description: %v", err)
	}
}

func TestTelegramChannelReplacesMessagePerTag(t *testing.T) {
	stub := &telegramStub{getMeOK: true}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	ch := NewTelegramChannel("token", "chat", srv.URL, time.Second, testLogger())
	ctx := context.Background()

	first := NewNotification(testAlert(), decimal.RequireFromString("1.10"), time.Now())
	second := NewNotification(testAlert(), decimal.RequireFromString("1.12"), time.Now())
	if err := ch.Deliver(ctx, first); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := ch.Deliver(ctx, second); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(stub.methods) != 2 || stub.methods[0] != "sendMessage" || stub.methods[1] != "editMessageText" {
		t.Fatalf("expected send then edit, got %v", stub.methods)
	}
	if stub.bodies[0]["chat_id"] != "chat" {
		t.Fatalf("chat_id missing: %#v", stub.bodies[0])
	}
	if id, _ := stub.bodies[1]["message_id"].(float64); id != 42 {
		t.Fatalf("edit should target the first message, got %#v", stub.bodies[1])
	}
	if text, _ := stub.bodies[1]["text"].(string); !strings.Contains(text, "1.1200") {
		t.Fatalf("edit should carry the new rate, got %q", text)
	}
}

func TestTelegramChannelOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	ch := NewTelegramChannel("token", "chat", srv.URL, time.Second, testLogger())
	n := NewNotification(testAlert(), decimal.NewFromInt(2), time.Now())
	if err := ch.Deliver(context.Background(), n); err == nil {
		t.Fatal("ok=false should fail delivery")
	}
}
