package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// GrantStore remembers which credentials a channel has verified, so the
// permission survives process restarts.
type GrantStore interface {
	LoadGrant(ctx context.Context, channel string) (string, error)
	SaveGrant(ctx context.Context, channel, subject string) error
}

// TelegramChannel pushes notifications through the Telegram Bot API. It is
// unauthorized until getMe confirms the token, and it edits the previous
// message for a tag instead of sending a new one.
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
	grants   GrantStore

	verified atomic.Bool
	mu       sync.Mutex
	messages map[string]int64
}

// NewTelegramChannel constructs the Telegram channel.
func NewTelegramChannel(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramChannel{
		botToken: strings.TrimSpace(botToken),
		chatID:   strings.TrimSpace(chatID),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
		messages: make(map[string]int64),
	}
}

// UseGrants makes verification persistent through g.
func (t *TelegramChannel) UseGrants(g GrantStore) *TelegramChannel {
	t.grants = g
	return t
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Permission(ctx context.Context) Permission {
	if t.botToken == "" || t.chatID == "" {
		return PermissionUnavailable
	}
	if t.verified.Load() {
		return PermissionAuthorized
	}
	if subject := t.subject(); t.grants != nil && subject != "" {
		stored, err := t.grants.LoadGrant(ctx, t.Name())
		if err != nil {
			t.logger.Warn().Err(err).Msg("load telegram grant")
		} else if stored == subject {
			t.verified.Store(true)
			return PermissionAuthorized
		}
	}
	return PermissionUnauthorized
}

// subject identifies the verified bot and chat. The bot id is the token part
// before the colon; the secret is never stored.
func (t *TelegramChannel) subject() string {
	botID, _, ok := strings.Cut(t.botToken, ":")
	if !ok || botID == "" {
		return ""
	}
	return botID + "/" + t.chatID
}

// RequestPermission verifies the bot token with getMe.
func (t *TelegramChannel) RequestPermission(ctx context.Context) (Permission, error) {
	if t.botToken == "" || t.chatID == "" {
		return PermissionUnavailable, nil
	}

	var me struct {
		Username string `json:"username"`
	}
	if err := t.call(ctx, "getMe", map[string]any{}, &me); err != nil {
		return PermissionUnauthorized, fmt.Errorf("verify telegram bot: %w", err)
	}

	t.verified.Store(true)
	t.logger.Info().Str("bot", me.Username).Msg("telegram bot verified")

	if subject := t.subject(); t.grants != nil && subject != "" {
		if err := t.grants.SaveGrant(ctx, t.Name(), subject); err != nil {
			t.logger.Warn().Err(err).Msg("save telegram grant")
		}
	}
	return PermissionAuthorized, nil
}

// Deliver edits the message previously sent for n.Tag, or sends a new one.
func (t *TelegramChannel) Deliver(ctx context.Context, n Notification) error {
	text := n.Text()

	t.mu.Lock()
	messageID, seen := t.messages[n.Tag]
	t.mu.Unlock()

	if seen {
		payload := map[string]any{
			"chat_id":    t.chatID,
			"message_id": messageID,
			"text":       text,
		}
		err := t.call(ctx, "editMessageText", payload, nil)
		if err == nil {
			t.logger.Debug().Str("tag", n.Tag).Int64("message_id", messageID).Msg("telegram message replaced")
			return nil
		}
		t.logger.Debug().Err(err).Str("tag", n.Tag).Msg("edit failed, sending a new message")
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	payload := map[string]any{
		"chat_id": t.chatID,
		"text":    text,
	}
	if err := t.call(ctx, "sendMessage", payload, &sent); err != nil {
		return err
	}

	t.mu.Lock()
	t.messages[n.Tag] = sent.MessageID
	t.mu.Unlock()
	return nil
}

func (t *TelegramChannel) call(ctx context.Context, method string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram %s status %d: %s", method, resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram %s status %d", method, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode telegram %s response: %w", method, decodeErr)
	}
	if !result.OK {
		return fmt.Errorf("telegram %s returned ok=false: %s", method, result.Description)
	}
	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("decode telegram %s result: %w", method, err)
		}
	}
	return nil
}

var _ Capability = (*TelegramChannel)(nil)
