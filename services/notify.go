package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	NotificationEventName  = "notification"
	DEFAULT_FANOUT_TIMEOUT = 5 * time.Second
	DEFAULT_PAGE_SIZE      = 20
	MAX_PAGE_SIZE          = 100
)

var notificationFanoutTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_fanout_total",
		Help: "Notification deliveries by channel and outcome",
	},
	[]string{"channel", "status"},
)

// NotificationEvent - типизированное событие для уведомления. У каждого типа свои поля,
// в строку Notification они проецируются через toNotification
type NotificationEvent interface {
	Recipient() string
	Actor() string
	toNotification() models.Notification
}

type LikeEvent struct {
	Liker      string
	PostAuthor string
	PostID     string
}

func (e LikeEvent) Recipient() string { return e.PostAuthor }
func (e LikeEvent) Actor() string     { return e.Liker }
func (e LikeEvent) toNotification() models.Notification {
	return newNotification(e, models.NotificationLike, &e.PostID, "liked your post")
}

type CommentEvent struct {
	Commenter  string
	PostAuthor string
	PostID     string
	CommentID  string
}

func (e CommentEvent) Recipient() string { return e.PostAuthor }
func (e CommentEvent) Actor() string     { return e.Commenter }
func (e CommentEvent) toNotification() models.Notification {
	return newNotification(e, models.NotificationComment, &e.PostID, "commented on your post")
}

type ShareEvent struct {
	Sharer     string
	PostAuthor string
	PostID     string
}

func (e ShareEvent) Recipient() string { return e.PostAuthor }
func (e ShareEvent) Actor() string     { return e.Sharer }
func (e ShareEvent) toNotification() models.Notification {
	return newNotification(e, models.NotificationShare, &e.PostID, "shared your post")
}

type FollowEvent struct {
	Follower string
	Followee string
}

func (e FollowEvent) Recipient() string { return e.Followee }
func (e FollowEvent) Actor() string     { return e.Follower }
func (e FollowEvent) toNotification() models.Notification {
	return newNotification(e, models.NotificationFollow, nil, "started following you")
}

type NewPostEvent struct {
	Author   string
	Follower string
	PostID   string
}

func (e NewPostEvent) Recipient() string { return e.Follower }
func (e NewPostEvent) Actor() string     { return e.Author }
func (e NewPostEvent) toNotification() models.Notification {
	return newNotification(e, models.NotificationNewPost, &e.PostID, "created a new post")
}

func newNotification(e NotificationEvent, t models.NotificationType, entityID *string, message string) models.Notification {
	return models.Notification{
		RecipientID: e.Recipient(),
		ActorID:     e.Actor(),
		Type:        t,
		EntityID:    entityID,
		Message:     &message,
	}
}

// Notifier - то, чем пользуются лента действий и граф подписок
type Notifier interface {
	CreateNotification(ctx context.Context, event NotificationEvent) (*models.Notification, error)
}

// Dispatcher сохраняет уведомления и раздает их по каналам доставки.
// Сохранение синхронное, доставка - фоновая и с таймаутом; ее ошибки только логируются
type Dispatcher struct {
	presence      Presence
	bus           RealtimeBus
	push          PushGateway
	devices       *DeviceService
	counters      *CounterService
	fanoutTimeout time.Duration
	wg            sync.WaitGroup
}

// RealtimeBus - межинстансовая доставка realtime-событий, реализуется NotificationBus
type RealtimeBus interface {
	Connected() bool
	Publish(ctx context.Context, view models.NotificationView) error
}

type DispatcherOption func(*Dispatcher)

func WithNotificationBus(bus RealtimeBus) DispatcherOption {
	return func(d *Dispatcher) { d.bus = bus }
}

func WithCounters(counters *CounterService) DispatcherOption {
	return func(d *Dispatcher) { d.counters = counters }
}

func WithFanoutTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.fanoutTimeout = timeout
		}
	}
}

func NewDispatcher(presence Presence, push PushGateway, devices *DeviceService, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		presence:      presence,
		push:          push,
		devices:       devices,
		fanoutTimeout: DEFAULT_FANOUT_TIMEOUT,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateNotification сохраняет уведомление и запускает доставку.
// Уведомление самому себе не создается никогда
func (d *Dispatcher) CreateNotification(ctx context.Context, event NotificationEvent) (*models.Notification, error) {
	if event.Recipient() == "" || event.Actor() == "" {
		return nil, fmt.Errorf("recipient and actor are required: %w", ErrValidation)
	}
	if event.Recipient() == event.Actor() {
		log.Log.WithField("user_id", event.Actor()).Debug("self notification skipped")
		return nil, ErrSelfNotification
	}

	notification := event.toNotification()
	if err := db.GetWriteDB(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	// Счетчик двигаем до ответа, чтобы следующий запрос unread-count его уже видел
	if d.counters != nil {
		if _, _, err := d.counters.IncrementCounter(ctx, notification.RecipientID, CounterTypeUnreadNotifications, 1); err != nil {
			log.Log.WithError(err).WithField("user_id", notification.RecipientID).Warn("unread counter not incremented")
		}
	}

	d.wg.Add(1)
	go func(n models.Notification) {
		defer d.wg.Done()
		d.fanout(n)
	}(notification)

	return &notification, nil
}

// Wait ждет завершения всех запущенных доставок
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) fanout(n models.Notification) {
	// запрос пользователя уже мог завершиться, поэтому свой контекст
	ctx, cancel := context.WithTimeout(context.Background(), d.fanoutTimeout)
	defer cancel()

	actors := loadActorViews(ctx, []string{n.ActorID})
	view := models.NotificationView{Notification: n, Actor: actors[n.ActorID]}

	var g errgroup.Group
	g.Go(func() error {
		d.deliverRealtime(ctx, view)
		return nil
	})
	if d.push != nil && d.devices != nil {
		g.Go(func() error {
			d.deliverPush(ctx, view)
			return nil
		})
	}
	_ = g.Wait()
}

// deliverRealtime при живой шине публикует всегда: о соединениях на других инстансах
// локальный presence не знает, и каждый consumer сам отдает событие своим сокетам.
// Без шины доставляем только в локальные соединения
func (d *Dispatcher) deliverRealtime(ctx context.Context, view models.NotificationView) {
	if d.presence == nil {
		return
	}

	if d.bus != nil && d.bus.Connected() {
		err := d.bus.Publish(ctx, view)
		if err == nil {
			notificationFanoutTotal.WithLabelValues("realtime", "published").Inc()
			return
		}
		// Fallback: шина недоступна, отдаем в локальные соединения
		log.Log.WithError(err).WithField("notification_id", view.ID).Warn("notification bus publish failed, emitting locally")
	}

	if !d.presence.IsOnline(ctx, view.RecipientID) {
		notificationFanoutTotal.WithLabelValues("realtime", "offline").Inc()
		return
	}
	if d.presence.EmitToUser(view.RecipientID, NotificationEventName, view) > 0 {
		notificationFanoutTotal.WithLabelValues("realtime", "delivered").Inc()
	} else {
		notificationFanoutTotal.WithLabelValues("realtime", "missed").Inc()
	}
}

func (d *Dispatcher) deliverPush(ctx context.Context, view models.NotificationView) {
	tokens, err := d.devices.ActivePushTokens(ctx, view.RecipientID)
	if err != nil {
		log.Log.WithError(err).WithField("user_id", view.RecipientID).Warn("failed to load push tokens")
		notificationFanoutTotal.WithLabelValues("push", "error").Inc()
		return
	}
	if len(tokens) == 0 {
		return
	}

	msg := PushMessage{
		Title: pushTitle(view.Type),
		Body:  pushBody(view),
		Data: map[string]string{
			"notificationId": view.ID,
			"type":           string(view.Type),
		},
	}
	if view.EntityID != nil {
		msg.Data["entityId"] = *view.EntityID
	}

	result, err := d.push.SendMulticast(ctx, tokens, msg)
	if err != nil {
		log.Log.WithError(err).WithField("user_id", view.RecipientID).Warn("push multicast failed")
		notificationFanoutTotal.WithLabelValues("push", "error").Inc()
		return
	}
	for _, r := range result.Responses {
		if r.Error != nil {
			// невалидные токены только логируем, устройство не трогаем
			log.Log.WithError(r.Error).
				WithField("user_id", view.RecipientID).
				WithField("token", maskToken(r.Token)).
				Warn("push delivery failed for token")
			notificationFanoutTotal.WithLabelValues("push", "failed").Inc()
			continue
		}
		notificationFanoutTotal.WithLabelValues("push", "delivered").Inc()
	}
}

func pushTitle(t models.NotificationType) string {
	switch t {
	case models.NotificationLike:
		return "New like"
	case models.NotificationComment:
		return "New comment"
	case models.NotificationShare:
		return "Your post was shared"
	case models.NotificationFollow:
		return "New follower"
	case models.NotificationNewPost:
		return "New post"
	}
	return "Notification"
}

func pushBody(view models.NotificationView) string {
	name := view.Actor.Nickname
	if name == "" {
		name = "Someone"
	}
	if view.Message == nil {
		return name
	}
	return name + " " + *view.Message
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// GetUserNotifications - уведомления пользователя, новые сверху, с проекцией автора действия
func (d *Dispatcher) GetUserNotifications(ctx context.Context, userID string, page, limit int) (*models.Page[models.NotificationView], error) {
	page, limit = pageBounds(page, limit)

	query := db.GetReadOnlyDB(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var rows []models.Notification
	err := db.GetReadOnlyDB(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	actorIDs := make([]string, 0, len(rows))
	for _, n := range rows {
		actorIDs = append(actorIDs, n.ActorID)
	}
	actors := loadActorViews(ctx, actorIDs)

	data := make([]models.NotificationView, 0, len(rows))
	for _, n := range rows {
		data = append(data, models.NotificationView{Notification: n, Actor: actors[n.ActorID]})
	}

	return &models.Page[models.NotificationView]{
		Data:     data,
		Total:    total,
		Page:     page,
		LastPage: lastPage(total, limit),
	}, nil
}

// MarkAsRead - идемпотентно ставит is_read. Чужое или несуществующее уведомление - ErrNotFound
func (d *Dispatcher) MarkAsRead(ctx context.Context, id, userID string) error {
	res := db.GetWriteDB(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var n models.Notification
		err := db.GetReadOnlyDB(ctx).Where("id = ? AND recipient_id = ?", id, userID).First(&n).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		return err
	}

	if d.counters != nil {
		if _, _, err := d.counters.IncrementCounter(ctx, userID, CounterTypeUnreadNotifications, -1); err != nil {
			log.Log.WithError(err).WithField("user_id", userID).Warn("unread counter not decremented")
		}
	}
	return nil
}

// MarkAllRead помечает прочитанными все уведомления пользователя
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := db.GetWriteDB(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications: %w", res.Error)
	}
	if d.counters != nil {
		if err := d.counters.SetCounterValue(ctx, userID, CounterTypeUnreadNotifications, 0); err != nil {
			log.Log.WithError(err).WithField("user_id", userID).Warn("unread counter not reset")
		}
	}
	return res.RowsAffected, nil
}

// UnreadCount берет счетчик из redis, при его отсутствии считает по БД
func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if d.counters != nil {
		n, err := d.counters.GetCounter(ctx, userID, CounterTypeUnreadNotifications)
		if err == nil {
			return n, nil
		}
		log.Log.WithError(err).WithField("user_id", userID).Warn("unread counter unavailable, counting in db")
	}

	var n int64
	err := db.GetReadOnlyDB(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}
