package server

import (
	"fmt"
	"log"
	"time"

	"evpool/internal"
	"evpool/internal/config"
	"evpool/metrics"
	"evpool/pusher"
	"evpool/sessioncache"
	"evpool/telegram"
)

// PoolSystem assembles the pool engine with its optional subsystems and
// runs the serving loops.
type PoolSystem struct {
	conf    *config.Config
	api     *Api
	logger  internal.LogHandler
	handler *SystemHandler
	pusher  *pusher.MessagePusher
}

func NewPoolSystem() (PoolSystem, error) {
	ps := PoolSystem{}

	conf, err := config.GetConfig()
	if err != nil {
		return ps, fmt.Errorf("config load failed: %s", err)
	}
	ps.conf = conf

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return ps, fmt.Errorf("time zone initialization failed: %s", err)
	}

	var database internal.Database
	if conf.Mongo.Enabled {
		database, err = internal.NewMongoClient(conf)
		if err != nil {
			return ps, fmt.Errorf("mongodb setup failed: %s", err)
		}
		if database != nil {
			log.Println("mongodb is configured and enabled")
		}
	} else {
		log.Println("database is disabled")
	}

	var messageService internal.MessageService
	if conf.Pusher.Enabled {
		messagePusher, err := pusher.NewPusher(conf)
		if err != nil {
			return ps, fmt.Errorf("pusher setup failed: %s", err)
		}
		if messagePusher != nil {
			ps.pusher = messagePusher
			messageService = messagePusher
			log.Println("pusher service is configured and enabled")
		}
	} else {
		log.Println("message pushing service is disabled")
	}

	// logger with database and push service for the message handling
	logService := internal.NewLogger(location)
	logService.SetDebugMode(conf.IsDebug)
	logService.SetDatabase(database)
	logService.SetMessageService(messageService)

	ps.logger = logService

	systemHandler := NewSystemHandler(conf, location)
	systemHandler.SetDatabase(database)
	systemHandler.SetLogger(logService)
	systemHandler.SetMessagePusher(messageService)

	if conf.Redis.Enabled {
		cache, err := sessioncache.NewStore(conf)
		if err != nil {
			return ps, fmt.Errorf("session cache setup failed: %s", err)
		}
		if cache != nil {
			systemHandler.SetSessionCache(cache)
			log.Println("session cache is configured and enabled")
		}
	} else {
		log.Println("session cache is disabled")
	}

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return ps, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetStatusInfo(systemHandler.StatusInfo)
		telegramBot.Start()
		systemHandler.SetEventHandler(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	err = systemHandler.OnStart()
	if err != nil {
		return ps, err
	}
	ps.handler = systemHandler

	apiServer := NewServerApi(conf, logService)
	apiServer.SetSystemHandler(systemHandler)
	ps.api = apiServer

	return ps, nil
}

func (ps *PoolSystem) Start() {

	go func() {
		if err := ps.api.Start(); err != nil {
			ps.logger.Error("api server failed", err)
		}
	}()

	if ps.pusher != nil {
		go func() {
			if err := ps.pusher.Start(); err != nil {
				ps.logger.Error("pusher server failed", err)
			}
		}()
	}

	if ps.conf.Metrics.Enabled {
		go func() {
			if err := metrics.Listen(ps.conf); err != nil {
				ps.logger.Error("metrics server failed", err)
			}
		}()
	}

	go ps.expirySweep()

	select {}
}

// expirySweep periodically releases reservations whose window has passed.
func (ps *PoolSystem) expirySweep() {
	interval := time.Duration(ps.conf.Pool.ExpirySweepSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ps.handler.CheckExpiredReservations()
	}
}
