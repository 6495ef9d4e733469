package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Messenger delivers outbound replies to the messaging channel.
type Messenger interface {
	SendText(ctx context.Context, recipient, text string) error
}

// GraphMessenger sends messages through the WhatsApp Cloud API.
type GraphMessenger struct {
	baseURL       string
	token         string
	phoneNumberID string
	client        *http.Client
}

// NewGraphMessenger creates a Cloud API messenger.
func NewGraphMessenger(baseURL, token, phoneNumberID string) *GraphMessenger {
	return &GraphMessenger{
		baseURL:       baseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

type outboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             outboundText `json:"text"`
}

type outboundText struct {
	Body string `json:"body"`
}

// SendText posts one text message to the recipient.
func (m *GraphMessenger) SendText(ctx context.Context, recipient, text string) error {
	payload, err := json.Marshal(outboundMessage{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             outboundText{Body: text},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", m.baseURL, m.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
