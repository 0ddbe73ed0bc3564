package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	mgoutil "NotifyGate/data/database/mgo/mongoutil"
	"NotifyGate/global"
	"NotifyGate/logger"
	mwsec "NotifyGate/middleware/security"
	"NotifyGate/module/notify"
	"NotifyGate/service/gateway"
	"NotifyGate/service/mgo"
	"NotifyGate/service/natsx"
	"NotifyGate/service/storage"
	storred "NotifyGate/service/storage/redis"
	sec "NotifyGate/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := global.Load(ctx); err != nil {
		logger.Errorf("[boot] config load: %v", err)
		return
	}
	global.ConfigIds()

	cfg := global.Config
	jwtOpts := sec.DefaultOptions(global.JwtSecret())

	// durable history: Mongo when configured, in-process twin otherwise
	var hist notify.History
	if cfg.Mongo.Enabled {
		mgo.StartAsync(ctx, &mgoutil.Config{
			Uri:         cfg.Mongo.Uri,
			Database:    cfg.Mongo.Database,
			Username:    cfg.Mongo.Username,
			Password:    cfg.Mongo.Password,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := mgo.WaitReady(waitCtx)
		cancel()
		if err != nil {
			logger.Errorf("[boot] mongo: %v", err)
			return
		}
		mh := notify.NewMongoHistory()
		if err := mh.EnsureIndexes(ctx); err != nil {
			logger.Warnf("[boot] mongo indexes: %v", err)
		}
		hist = mh
	} else {
		logger.Warn("[boot] mongo disabled, notification history is in-memory only")
		hist = notify.NewMemoryHistory()
	}
	store := notify.NewStore(hist, cfg.FeedCap)

	// cluster presence mirror, optional
	var mirror *storage.PresenceMirror
	if cfg.Redis.Enabled {
		if err := storred.InitRedis(storred.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}); err != nil {
			logger.Errorf("[boot] redis: %v", err)
			return
		}
		mirror = storage.NewPresenceMirror(storred.GetRedis(), storage.MirrorConfig{
			TTL: global.PresenceMirrorTTL,
		})
	}

	// event bus, optional
	var bus *natsx.Manager
	if cfg.Nats.Enabled {
		m, err := natsx.NewManager(natsx.Config{
			Servers: cfg.Nats.Servers,
			Name:    cfg.Nats.Name,
		})
		if err != nil {
			logger.Errorf("[boot] nats: %v", err)
			return
		}
		if err := gateway.RegisterBusRoutes(m); err != nil {
			logger.Errorf("[boot] nats routes: %v", err)
			return
		}
		bus = m
		defer func() { _ = bus.Close() }()
	}

	srv := gateway.NewServer(gateway.ServerConf{
		NodeID:        cfg.NodeID,
		SendQueueSize: cfg.SendQueueSize,
		FanoutWorkers: cfg.FanoutWorkers,
		JWT:           jwtOpts,
		AllowGuests:   true,
	}, store, mirror, bus)
	defer srv.Close()

	if err := srv.StartBus(); err != nil {
		logger.Errorf("[boot] bus subscribe: %v", err)
		return
	}

	notifyHandler := notify.NewHandler(store)
	notifyHandler.Broadcast = srv.NotifyRead
	notifyHandler.Notify = srv.NotifyNew

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true, "node": cfg.NodeID}) })
	r.GET("/ws", srv.HandleWS)

	api := r.Group("/api", mwsec.Middleware(mwsec.DefaultOptions(jwtOpts)))
	notifyHandler.RegisterRoutes(api)

	internal := r.Group("/api/internal")
	notifyHandler.RegisterInternalRoutes(internal)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	logger.Infof("[boot] node=%s listening on %s", cfg.NodeID, addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("[boot] http server: %v", err)
	}
}
