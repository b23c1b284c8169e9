package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sportsocial/api/handlers"
	"sportsocial/api/middleware"
	"sportsocial/api/routes"
	"sportsocial/config"
	"sportsocial/db"
	"sportsocial/services"
	"sportsocial/utils/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildPushGateway - FCM если есть service account, иначе push только логируется
func buildPushGateway(ctx context.Context, conf *config.ConfigSchema) services.PushGateway {
	if conf.Push.CredentialsFile == "" {
		log.Log.Warn("FCM credentials are not configured, push notifications will be logged only")
		return services.LogPushGateway{}
	}
	gateway, err := services.NewFCMGateway(ctx, conf.Push.CredentialsFile, conf.Push.ProjectID)
	if err != nil {
		log.Log.WithError(err).Warn("FCM gateway not initialized, push notifications will be logged only")
		return services.LogPushGateway{}
	}
	return gateway
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	conf := config.AppConfig
	log.InitLogger("sportsocial", conf.Logs.Level, conf.Logs.JSON)
	log.Log.Info("Starting server...")

	if conf.Auth.JWTSecret == "" {
		log.Log.Fatal("auth.jwt_secret (JWT_SECRET) is required")
	}

	if err = db.ConnectDB(); err != nil {
		panic("Failed to connect to the database: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decoder := services.NewJWTDecoder(conf.Auth.JWTSecret)
	local := services.NewPresenceRegistry(decoder)
	var presence services.Presence = local

	// Redis необязателен: без него нет общего presence и кеша счетчиков
	var counters *services.CounterService
	if err := services.InitRedis(); err != nil {
		log.Log.WithError(err).Warn("Redis unavailable, unread counters and shared presence disabled")
	} else {
		defer services.CloseRedis()
		counters = services.NewCounterService(services.RedisClient)
		presence = services.NewSharedPresence(local, services.RedisClient, uuid.NewString())
	}

	dispatcherOpts := []services.DispatcherOption{services.WithFanoutTimeout(conf.Notifications.FanoutTimeout)}
	if counters != nil {
		dispatcherOpts = append(dispatcherOpts, services.WithCounters(counters))
	}
	if conf.RabbitMQ.URL != "" {
		bus, err := services.NewNotificationBus(conf.RabbitMQ.URL)
		if err != nil {
			log.Log.WithError(err).Warn("RabbitMQ unavailable, notifications are delivered to local connections only")
		} else {
			defer bus.Close()
			if err := bus.StartConsumer(ctx, presence); err != nil {
				log.Log.WithError(err).Warn("notification bus consumer not started")
			} else {
				dispatcherOpts = append(dispatcherOpts, services.WithNotificationBus(bus))
			}
		}
	}

	devices := services.NewDeviceService()
	dispatcher := services.NewDispatcher(presence, buildPushGateway(ctx, conf), devices, dispatcherOpts...)
	social := services.NewSocialService(dispatcher)
	interests := services.NewInterestService()

	handlers.Setup(handlers.Services{
		Presence:   presence,
		Feed:       services.NewFeedComposer(social, interests),
		Ledger:     services.NewEngagementLedger(dispatcher, social),
		Social:     social,
		Interests:  interests,
		Dispatcher: dispatcher,
		Devices:    devices,
		Otp:        services.NewOtpService(services.NewSmsChainFromConfig(conf.Sms)),
	})

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware("sportsocial"))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	routes.PublicApi(router, decoder)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port),
		Handler: router,
	}
	go func() {
		log.Log.Infof("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Log.WithError(err).Error("server shutdown failed")
	}
	// доставки уже сохраненных уведомлений
	dispatcher.Wait()
}
