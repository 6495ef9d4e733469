package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendchat/lendchat/internal/config"
)

type stubHandler struct {
	mu    sync.Mutex
	calls []string
	reply string
}

func (h *stubHandler) Handle(_ context.Context, accountID, text string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, accountID+":"+text)
	return h.reply
}

type stubMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *stubMessenger) SendText(_ context.Context, recipient, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recipient+":"+text)
	return nil
}

func newTestServer(secret string) (*Server, *stubHandler, *stubMessenger) {
	handler := &stubHandler{reply: "ok!"}
	messenger := &stubMessenger{}
	cfg := &config.Config{
		VerifyToken: "verify-me",
		AppSecret:   secret,
		Port:        0,
	}
	return NewServer(cfg, handler, messenger), handler, messenger
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const messagePayload = `{
	"entry": [{
		"changes": [{
			"value": {
				"messages": [{
					"from": "15551234567",
					"id": "wamid.1",
					"type": "text",
					"text": {"body": "balance"}
				}]
			}
		}]
	}]
}`

func TestVerifyHandshake(t *testing.T) {
	srv, _, _ := newTestServer("secret")

	t.Run("echoes the challenge on a valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "12345", rec.Body.String())
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestMessageDelivery(t *testing.T) {
	t.Run("valid signature dispatches and replies", func(t *testing.T) {
		srv, handler, messenger := newTestServer("secret")
		body := []byte(messagePayload)

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("secret", body))
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"15551234567:balance"}, handler.calls)
		assert.Equal(t, []string{"15551234567:ok!"}, messenger.sent)
	})

	t.Run("bad signature is rejected without dispatch", func(t *testing.T) {
		srv, handler, _ := newTestServer("secret")
		body := []byte(messagePayload)

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, handler.calls)
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		srv, handler, _ := newTestServer("secret")

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(messagePayload)))
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, handler.calls)
	})

	t.Run("non-text messages are ignored", func(t *testing.T) {
		srv, handler, _ := newTestServer("secret")
		body := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"1555","type":"image"}]}}]}]}`)

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("secret", body))
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, handler.calls)
	})

	t.Run("unparseable payload still returns 200", func(t *testing.T) {
		srv, _, _ := newTestServer("secret")
		body := []byte("not json")

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("secret", body))
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSenderRateLimit(t *testing.T) {
	srv, handler, _ := newTestServer("secret")
	body := []byte(messagePayload)

	// Burst of 3 allowed, the rest dropped.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("secret", body))
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, handler.calls, 3)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
