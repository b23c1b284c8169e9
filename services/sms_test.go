package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"sportsocial/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPlaceholder(t *testing.T) {
	for _, v := range []string{"", "  ", "null", "undefined", "CHANGEME", "your_auth_token", "<api-key>", "xxxxxxxx"} {
		assert.True(t, isPlaceholder(v), v)
	}
	for _, v := range []string{"AC1234567890", "+15550001111", "-4000064873"} {
		assert.False(t, isPlaceholder(v), v)
	}
}

func vonageServer(t *testing.T, status string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/sms/json", r.URL.Path)
		assert.Equal(t, "key", r.PostForm.Get("api_key"))
		assert.Equal(t, "15550001111", r.PostForm.Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"status": status, "error-text": "throttled"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSmsChainSkipsMisconfiguredProvider(t *testing.T) {
	var twilioHits, vonageHits int32
	twilioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&twilioHits, 1)
	}))
	defer twilioSrv.Close()
	vonageSrv := vonageServer(t, "0", &vonageHits)

	chain := NewSmsChain(
		&TwilioChannel{AccountSID: "AC1", AuthToken: "your_auth_token", PhoneNumber: "+1555", BaseURL: twilioSrv.URL, Client: twilioSrv.Client()},
		&VonageChannel{APIKey: "key", APISecret: "secret", From: "Sport", BaseURL: vonageSrv.URL, Client: vonageSrv.Client()},
	)

	result := chain.Send(context.Background(), "+15550001111", "code 123456")
	assert.Equal(t, SmsResult{Success: true, Provider: "vonage"}, result)
	assert.Equal(t, int32(0), atomic.LoadInt32(&twilioHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&vonageHits))
}

func TestSmsChainFallsThroughFailingProvider(t *testing.T) {
	var twilioHits int32
	twilioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&twilioHits, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "token", pass)
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer twilioSrv.Close()

	telegramSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "-100", body["chat_id"])
		assert.Contains(t, body["text"], "+15550001111")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer telegramSrv.Close()

	chain := NewSmsChain(
		&TwilioChannel{AccountSID: "AC1", AuthToken: "token", PhoneNumber: "+1555", BaseURL: twilioSrv.URL, Client: twilioSrv.Client()},
		&TelegramChannel{BotToken: "bot-token", ChatID: "-100", BaseURL: telegramSrv.URL, Client: telegramSrv.Client()},
	)

	result := chain.Send(context.Background(), "+15550001111", "code 123456")
	assert.True(t, result.Success)
	assert.Equal(t, "telegram", result.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&twilioHits))
}

func TestSmsChainAllMisconfiguredFallsBackToMock(t *testing.T) {
	chain := NewSmsChain(
		&TwilioChannel{AccountSID: "null", AuthToken: "undefined"},
		&VonageChannel{},
		&TelegramChannel{BotToken: "<bot-token>", ChatID: "changeme"},
	)

	result := chain.Send(context.Background(), "+15550001111", "code 123456")
	assert.False(t, result.Success)
	assert.Equal(t, MockProviderName, result.Provider)
	assert.NotEmpty(t, result.Error)
}

func TestSmsChainProviderErrorIsReported(t *testing.T) {
	var hits int32
	vonageSrv := vonageServer(t, "1", &hits)
	chain := NewSmsChain(&VonageChannel{APIKey: "key", APISecret: "secret", From: "Sport", BaseURL: vonageSrv.URL, Client: vonageSrv.Client()})

	result := chain.Send(context.Background(), "+15550001111", "code")
	assert.False(t, result.Success)
	assert.Equal(t, MockProviderName, result.Provider)
	assert.Contains(t, result.Error, "vonage")
	assert.Contains(t, result.Error, ErrProviderUnavailable.Error())
}

func TestNewSmsChainFromConfigKeepsOrder(t *testing.T) {
	conf := config.SmsConfig{Providers: []string{"telegram", "unknown", " Twilio "}}
	conf.Telegram.BotToken = "bot"
	conf.Telegram.ChatID = "-1"

	chain := NewSmsChainFromConfig(conf)
	require.Len(t, chain.channels, 2)
	assert.Equal(t, "telegram", chain.channels[0].Name())
	assert.True(t, chain.channels[0].IsConfigured())
	assert.Equal(t, "twilio", chain.channels[1].Name())
	assert.False(t, chain.channels[1].IsConfigured())
}
