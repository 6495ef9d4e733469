// Package webhook exposes the messaging-platform webhook: GET
// subscription verification and POST message delivery, with payload
// signature checks and per-sender rate limiting.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lendchat/lendchat/internal/config"
	"github.com/lendchat/lendchat/internal/logger"
)

const maxPayloadBytes = 1 << 20

// Handler turns one inbound message into a reply.
type Handler interface {
	Handle(ctx context.Context, accountID, text string) string
}

// Server is the inbound HTTP surface.
type Server struct {
	config     *config.Config
	bot        Handler
	messenger  Messenger
	limiter    *senderLimiter
	httpServer *http.Server
}

// NewServer creates the webhook server.
func NewServer(cfg *config.Config, handler Handler, messenger Messenger) *Server {
	return &Server{
		config:    cfg,
		bot:       handler,
		messenger: messenger,
		limiter:   newSenderLimiter(rate.Every(2*time.Second), 3),
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "webhook server listening", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerify(w, r)
	case http.MethodPost:
		s.handleMessages(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerify answers the platform's subscription handshake: echo the
// challenge when the verify token matches.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != s.config.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, q.Get("hub.challenge"))
}

// Inbound payload, trimmed to the fields the bot needs.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// handleMessages verifies the payload signature, then handles each
// text message and replies through the messenger. The platform always
// gets a 200 for authenticated deliveries; per-message failures are
// logged, not surfaced, so the platform does not redeliver.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	if !s.validSignature(r.Header.Get("X-Hub-Signature-256"), body) {
		logger.Warn(r.Context(), "webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn(r.Context(), "webhook payload unreadable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				s.processMessage(r.Context(), msg)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) processMessage(ctx context.Context, msg inboundMessage) {
	if msg.Type != "text" || msg.From == "" {
		return
	}

	ctx = logger.WithRequestID(ctx, uuid.New().String())

	if !s.limiter.allow(msg.From) {
		logger.Warn(ctx, "sender rate limited", "account", logger.MaskAccountID(msg.From))
		return
	}

	logger.Info(ctx, "message received",
		"account", logger.MaskAccountID(msg.From), "message_id", msg.ID)

	reply := s.bot.Handle(ctx, msg.From, msg.Text.Body)
	if reply == "" {
		return
	}
	if err := s.messenger.SendText(ctx, msg.From, reply); err != nil {
		logger.Error(ctx, "reply delivery failed",
			"account", logger.MaskAccountID(msg.From), "error", err)
	}
}

// validSignature checks the platform's HMAC-SHA256 payload signature.
func (s *Server) validSignature(header string, body []byte) bool {
	if s.config.AppSecret == "" {
		// No secret configured means signature checks are disabled,
		// for local development only.
		return true
	}

	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.config.AppSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// senderLimiter holds one token bucket per sender.
type senderLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newSenderLimiter(limit rate.Limit, burst int) *senderLimiter {
	return &senderLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *senderLimiter) allow(sender string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[sender]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[sender] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
