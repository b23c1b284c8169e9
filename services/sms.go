package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sportsocial/config"
	"sportsocial/utils/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TWILIO_BASE_URL   = "https://api.twilio.com"
	VONAGE_BASE_URL   = "https://rest.nexmo.com"
	TELEGRAM_BASE_URL = "https://api.telegram.org"

	MockProviderName = "mock"
)

var smsDispatchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sms_dispatch_total",
		Help: "SMS dispatch attempts by provider and outcome",
	},
	[]string{"provider", "status"},
)

// SmsChannel - один провайдер доставки SMS
type SmsChannel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, phoneNumber, message string) error
}

type SmsResult struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"`
}

// isPlaceholder - значения, которые остаются в .env после копирования из примера
func isPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "", v == "null", v == "undefined", v == "changeme":
		return true
	case strings.HasPrefix(v, "your_"), strings.HasPrefix(v, "your-"):
		return true
	case strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">"):
		return true
	case strings.HasPrefix(v, "xxx"):
		return true
	}
	return false
}

func allConfigured(values ...string) bool {
	for _, v := range values {
		if isPlaceholder(v) {
			return false
		}
	}
	return true
}

func defaultSmsHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func readProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

type TwilioChannel struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	BaseURL     string
	Client      *http.Client
}

func (c *TwilioChannel) Name() string { return "twilio" }

func (c *TwilioChannel) IsConfigured() bool {
	return allConfigured(c.AccountSID, c.AuthToken, c.PhoneNumber)
}

func (c *TwilioChannel) Send(ctx context.Context, phoneNumber, message string) error {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("From", c.PhoneNumber)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.BaseURL, url.PathEscape(c.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readProviderError(resp)
	}
	return nil
}

type VonageChannel struct {
	APIKey    string
	APISecret string
	From      string
	BaseURL   string
	Client    *http.Client
}

func (c *VonageChannel) Name() string { return "vonage" }

func (c *VonageChannel) IsConfigured() bool {
	return allConfigured(c.APIKey, c.APISecret, c.From)
}

type vonageResponse struct {
	Messages []struct {
		Status    string `json:"status"`
		ErrorText string `json:"error-text"`
	} `json:"messages"`
}

func (c *VonageChannel) Send(ctx context.Context, phoneNumber, message string) error {
	form := url.Values{}
	form.Set("api_key", c.APIKey)
	form.Set("api_secret", c.APISecret)
	form.Set("from", c.From)
	form.Set("to", strings.TrimPrefix(phoneNumber, "+"))
	form.Set("text", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sms/json", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readProviderError(resp)
	}

	// vonage отвечает 200 и кладет ошибку в статус сообщения
	var body vonageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid vonage response: %w", err)
	}
	if len(body.Messages) == 0 {
		return fmt.Errorf("empty vonage response")
	}
	if m := body.Messages[0]; m.Status != "0" {
		return fmt.Errorf("vonage status %s: %s", m.Status, m.ErrorText)
	}
	return nil
}

// TelegramChannel отправляет код в служебный чат, а не на телефон
type TelegramChannel struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) IsConfigured() bool {
	return allConfigured(c.BotToken, c.ChatID)
}

func (c *TelegramChannel) Send(ctx context.Context, phoneNumber, message string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": c.ChatID,
		"text":    fmt.Sprintf("[OTP for %s]\n%s", phoneNumber, message),
	})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readProviderError(resp)
	}

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid telegram response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("telegram error: %s", body.Description)
	}
	return nil
}

// MockChannel всегда стоит последним: только пишет сообщение в лог
type MockChannel struct{}

func (MockChannel) Name() string       { return MockProviderName }
func (MockChannel) IsConfigured() bool { return true }

func (MockChannel) Send(ctx context.Context, phoneNumber, message string) error {
	log.Log.WithField("phone", maskPhone(phoneNumber)).Info("[MOCK SMS] " + message)
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// SmsChain опрашивает провайдеров по порядку до первой успешной отправки
type SmsChain struct {
	channels []SmsChannel
	mock     SmsChannel
}

func NewSmsChain(channels ...SmsChannel) *SmsChain {
	return &SmsChain{channels: channels, mock: MockChannel{}}
}

// NewSmsChainFromConfig собирает цепочку в порядке sms.providers, неизвестные имена пропускаются
func NewSmsChainFromConfig(conf config.SmsConfig) *SmsChain {
	client := defaultSmsHTTPClient()
	channels := make([]SmsChannel, 0, len(conf.Providers))
	for _, name := range conf.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "twilio":
			channels = append(channels, &TwilioChannel{
				AccountSID:  conf.Twilio.AccountSID,
				AuthToken:   conf.Twilio.AuthToken,
				PhoneNumber: conf.Twilio.PhoneNumber,
				BaseURL:     TWILIO_BASE_URL,
				Client:      client,
			})
		case "vonage":
			channels = append(channels, &VonageChannel{
				APIKey:    conf.Vonage.APIKey,
				APISecret: conf.Vonage.APISecret,
				From:      conf.Vonage.From,
				BaseURL:   VONAGE_BASE_URL,
				Client:    client,
			})
		case "telegram":
			channels = append(channels, &TelegramChannel{
				BotToken: conf.Telegram.BotToken,
				ChatID:   conf.Telegram.ChatID,
				BaseURL:  TELEGRAM_BASE_URL,
				Client:   client,
			})
		default:
			log.Log.WithField("provider", name).Warn("unknown sms provider skipped")
		}
	}
	return NewSmsChain(channels...)
}

// Send никогда не возвращает ошибку: итог описывается SmsResult
func (c *SmsChain) Send(ctx context.Context, phoneNumber, message string) SmsResult {
	var lastErr error
	for _, ch := range c.channels {
		if !ch.IsConfigured() {
			log.Log.WithField("provider", ch.Name()).Debug("sms provider not configured, skipping")
			smsDispatchTotal.WithLabelValues(ch.Name(), "skipped").Inc()
			continue
		}
		err := ch.Send(ctx, phoneNumber, message)
		if err == nil {
			smsDispatchTotal.WithLabelValues(ch.Name(), "sent").Inc()
			return SmsResult{Success: true, Provider: ch.Name()}
		}
		lastErr = fmt.Errorf("%s: %v: %w", ch.Name(), err, ErrProviderUnavailable)
		log.Log.WithError(lastErr).WithField("provider", ch.Name()).Warn("sms provider failed, trying next")
		smsDispatchTotal.WithLabelValues(ch.Name(), "failed").Inc()
	}

	_ = c.mock.Send(ctx, phoneNumber, message)
	smsDispatchTotal.WithLabelValues(MockProviderName, "logged").Inc()
	result := SmsResult{Success: false, Provider: MockProviderName, Error: "no sms provider available"}
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	return result
}
