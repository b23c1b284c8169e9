package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sportsocial/models"
	"sportsocial/utils/log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationExchange = "notification_events"

// NotificationBus - шина между инстансами: уведомление публикуется один раз,
// каждый инстанс доставляет его в свои локальные соединения
type NotificationBus struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewNotificationBus инициализирует соединение и exchange
func NewNotificationBus(url string) (*NotificationBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	// Создаем exchange типа topic
	if err := channel.ExchangeDeclare(
		notificationExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Log.Info("RabbitMQ notification bus initialized")
	return &NotificationBus{conn: conn, channel: channel}, nil
}

// Connected - false, если соединение с брокером потеряно
func (b *NotificationBus) Connected() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.conn.IsClosed()
}

// Publish публикует уведомление с ключом user.<recipientId>
func (b *NotificationBus) Publish(ctx context.Context, view models.NotificationView) error {
	body, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel.PublishWithContext(ctx,
		notificationExchange,
		"user."+view.RecipientID,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// StartConsumer слушает шину во временной очереди инстанса и отдает события в presence
func (b *NotificationBus) StartConsumer(ctx context.Context, presence Presence) error {
	b.mu.Lock()
	q, err := b.channel.QueueDeclare(
		"",    // имя выдаст брокер
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err == nil {
		err = b.channel.QueueBind(q.Name, "user.*", notificationExchange, false, nil)
	}
	var msgs <-chan amqp.Delivery
	if err == nil {
		msgs, err = b.channel.Consume(q.Name, "", true, true, false, false, nil)
	}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Log.Warn("notification bus consumer channel closed")
					return
				}
				var view models.NotificationView
				if err := json.Unmarshal(msg.Body, &view); err != nil {
					log.Log.WithError(err).Warn("failed to unmarshal notification event")
					continue
				}
				presence.EmitToUser(view.RecipientID, NotificationEventName, view)
			}
		}
	}()
	return nil
}

func (b *NotificationBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
