package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"sportsocial/utils/log"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
)

const (
	fcmScope          = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpointFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
	fcmMaxParallel    = 8
)

type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

type PushTokenResult struct {
	Token string
	Error error
}

// PushBatchResult - результат multicast-рассылки, по одному ответу на токен в порядке токенов
type PushBatchResult struct {
	SuccessCount int
	FailureCount int
	Responses    []PushTokenResult
}

// PushGateway - провайдер push-уведомлений
type PushGateway interface {
	SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error)
}

// FCMGateway отправляет push через FCM HTTP v1
type FCMGateway struct {
	client   *http.Client
	endpoint string
}

// NewFCMGateway читает service account и готовит http-клиент с oauth2 токенами
func NewFCMGateway(ctx context.Context, credentialsFile, projectID string) (*FCMGateway, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read FCM credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FCM credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("FCM project id is empty: %w", ErrValidation)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 10 * time.Second
	return NewFCMGatewayWithClient(client, fmt.Sprintf(fcmEndpointFormat, projectID)), nil
}

func NewFCMGatewayWithClient(client *http.Client, endpoint string) *FCMGateway {
	return &FCMGateway{client: client, endpoint: endpoint}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendMulticast шлет сообщение на каждый токен отдельным запросом, параллельно.
// Ошибка отдельного токена не прерывает остальных
func (g *FCMGateway) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error) {
	result := &PushBatchResult{Responses: make([]PushTokenResult, len(tokens))}
	if len(tokens) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(fcmMaxParallel)
	for i, token := range tokens {
		eg.Go(func() error {
			err := g.send(ctx, token, msg)
			mu.Lock()
			defer mu.Unlock()
			result.Responses[i] = PushTokenResult{Token: token, Error: err}
			if err != nil {
				result.FailureCount++
			} else {
				result.SuccessCount++
			}
			return nil
		})
	}
	_ = eg.Wait()
	return result, nil
}

func (g *FCMGateway) send(ctx context.Context, token string, msg PushMessage) error {
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fcm returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// LogPushGateway используется, когда FCM не настроен: только пишет в лог
type LogPushGateway struct{}

func (LogPushGateway) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error) {
	result := &PushBatchResult{Responses: make([]PushTokenResult, 0, len(tokens))}
	for _, token := range tokens {
		log.Log.WithField("token", maskToken(token)).WithField("title", msg.Title).Info("push (not configured): " + msg.Body)
		result.Responses = append(result.Responses, PushTokenResult{Token: token})
		result.SuccessCount++
	}
	return result, nil
}
