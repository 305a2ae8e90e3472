package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atmx/signal-monitor/internal/model"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	defaultWhatsAppBaseURL = "https://graph.facebook.com/v19.0"

	// Discord rejects message content above 2000 characters.
	discordMaxContent = 2000
)

// NewHTTPClient returns the client shared by the channel adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// --- Telegram ---

// TelegramSender posts through the Bot API sendMessage method.
type TelegramSender struct {
	BaseURL string
	Client  HTTPClient
}

// NewTelegramSender creates a sender against the public Bot API.
func NewTelegramSender(client HTTPClient) *TelegramSender {
	return &TelegramSender{BaseURL: defaultTelegramBaseURL, Client: client}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (s *TelegramSender) Send(ctx context.Context, creds model.Credentials, text string) error {
	if creds.BotToken == "" || creds.ChatID == "" {
		return fmt.Errorf("%w: telegram needs bot_token and chat_id", ErrMissingCredentials)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.BaseURL, "/"), creds.BotToken)
	body := telegramMessage{ChatID: creds.ChatID, Text: text, DisableWebPagePreview: true}
	return postJSON(ctx, s.Client, model.ChannelTelegram, url, nil, body)
}

// --- Discord ---

// DiscordSender posts to a channel webhook.
type DiscordSender struct {
	Client HTTPClient
}

// NewDiscordSender creates a webhook sender.
func NewDiscordSender(client HTTPClient) *DiscordSender {
	return &DiscordSender{Client: client}
}

type discordMessage struct {
	Content string `json:"content"`
}

func (s *DiscordSender) Send(ctx context.Context, creds model.Credentials, text string) error {
	if creds.WebhookURL == "" {
		return fmt.Errorf("%w: discord needs webhook_url", ErrMissingCredentials)
	}
	return postJSON(ctx, s.Client, model.ChannelDiscord, creds.WebhookURL, nil, discordMessage{Content: truncate(text, discordMaxContent)})
}

// --- WhatsApp ---

// WhatsAppSender posts text messages through the Cloud API.
type WhatsAppSender struct {
	BaseURL string
	Client  HTTPClient
}

// NewWhatsAppSender creates a sender against the Graph API.
func NewWhatsAppSender(client HTTPClient) *WhatsAppSender {
	return &WhatsAppSender{BaseURL: defaultWhatsAppBaseURL, Client: client}
}

type whatsAppText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

func (s *WhatsAppSender) Send(ctx context.Context, creds model.Credentials, text string) error {
	if creds.PhoneNumberID == "" || creds.AccessToken == "" || creds.Recipient == "" {
		return fmt.Errorf("%w: whatsapp needs phone_number_id, access_token and recipient", ErrMissingCredentials)
	}
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.BaseURL, "/"), creds.PhoneNumberID)
	body := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               creds.Recipient,
		Type:             "text",
		Text:             whatsAppText{Body: text},
	}
	headers := map[string]string{"Authorization": "Bearer " + creds.AccessToken}
	return postJSON(ctx, s.Client, model.ChannelWhatsApp, url, headers, body)
}

func postJSON(ctx context.Context, client HTTPClient, ch model.ChannelType, url string, headers map[string]string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", ch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build %s request: %w", ch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", ch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SendError{Channel: ch, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
