package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"larder/bot"
	"larder/entity"
	"larder/impl/auth"
	"larder/impl/core"
	"larder/impl/invite"
	"larder/impl/order"
	"larder/impl/quota"
	"larder/impl/registration"
	"larder/internal/config"
	"larder/internal/database"
	"larder/internal/http-server/api"
	"larder/internal/memstore"
	"larder/internal/metrics"
	"larder/internal/ocr"
	"larder/internal/recordstore"
	"larder/internal/stripeclient"
	"larder/lib/logger"
	"larder/lib/sl"

	"github.com/prometheus/client_golang/prometheus"
)

// store is what every driver implements; each service sees only its slice.
type store interface {
	auth.Database
	invite.Database
	registration.Database
	quota.Database
	order.Database
}

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting larder", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminIds, log)
		if err != nil {
			log.Error("telegram bot", sl.Err(err))
		} else {
			minLevel := logger.ParseLevel(conf.Telegram.MinLevel)
			tgBot.SetMinLogLevel(minLevel)
			log = slog.New(logger.NewTelegramHandler(log.Handler(), tgBot, minLevel))
			log.Info("telegram alerts enabled", slog.String("min_level", minLevel.String()))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	db, closeStore, err := openStore(ctx, conf, log)
	if err != nil {
		log.Error("store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: conf.Ocr.Timeout}
	tokens := ocr.NewTokenCache(
		ocr.NewOAuthClient(httpClient, conf.Ocr.OAuthURL, conf.Ocr.ClientID, conf.Ocr.ClientSecret, log),
		m, log,
	)
	ocrClient := ocr.NewClient(httpClient, conf.Ocr.APIURL, tokens, log)

	handler := core.New(auth.New(db, log), log)
	handler.SetInviteService(invite.New(db, conf.Registration.MaxUsers, m, log))
	handler.SetRegistrationService(registration.New(db, conf.Registration.MaxUsers, m, log))
	handler.SetQuotaService(quota.New(db, ocrClient, quota.Config{
		MonthlyLimit:    conf.Ocr.MonthlyLimit,
		AnonymousPolicy: entity.AnonymousPolicy(conf.Ocr.AnonymousPolicy),
		AnonymousLimit:  conf.Ocr.AnonymousLimit,
		AnonymousWindow: conf.Ocr.AnonymousWindow,
	}, m, log))

	orders := order.New(db, log)
	if conf.Stripe.APIKey != "" {
		stripeClient := stripeclient.New(conf.Stripe, log)
		orders.SetPaymentLinker(stripeClient)
		orders.SetPaymentVerifier(stripeClient)
	}
	handler.SetOrderService(orders)

	if tgBot != nil {
		tgBot.SetOperator(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot start", sl.Err(err))
			}
		}()
		defer tgBot.Stop()
	}

	if err = api.New(ctx, conf, log, handler, m, registry); err != nil {
		log.Error("server", sl.Err(err))
		return
	}
	log.Info("server stopped")
}

func openStore(ctx context.Context, conf *config.Config, log *slog.Logger) (store, func(), error) {
	switch conf.Store.Driver {
	case config.DriverRecordStore:
		log.Info("using record store", slog.String("endpoint", conf.RecordStore.Endpoint))
		client := recordstore.NewClient(recordstore.Config{
			Endpoint:  conf.RecordStore.Endpoint,
			AppID:     conf.RecordStore.AppID,
			AppKey:    conf.RecordStore.AppKey,
			MasterKey: conf.RecordStore.MasterKey,
			Timeout:   conf.RecordStore.Timeout,
		}, log)
		return client, func() {}, nil
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		mongo, err := database.NewMongoClient(connectCtx, conf)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using mongodb", slog.String("host", conf.Mongo.Host), slog.String("database", conf.Mongo.Database))
		return mongo, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongo.Close(closeCtx); err != nil {
				log.Error("mongodb disconnect", sl.Err(err))
			}
		}, nil
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", conf.Store.Driver)
	}
}
