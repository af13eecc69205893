package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/cache"
	"social-publisher/infrastructure/clients/contentgen"
	"social-publisher/infrastructure/clients/dispatch"
	"social-publisher/infrastructure/clients/graph"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/clients/profile"
	"social-publisher/infrastructure/clients/resumable"
	"social-publisher/infrastructure/clients/youtube"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/persistence"
	"social-publisher/infrastructure/pubsub"
	"social-publisher/infrastructure/realtime"
	"social-publisher/infrastructure/servicebus"
	httpHandler "social-publisher/interfaces/http"
	"social-publisher/server"
	"social-publisher/usecase"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type application struct {
	router  *gin.Engine
	closers []func()
	closed  bool
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() {
	if a.closed {
		return
	}
	a.closed = true
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *application) onClose(f func()) { a.closers = append(a.closers, f) }

func buildApp(ctx context.Context) (*application, error) {
	app := &application{}
	checks := map[string]httpHandler.Pinger{}

	store, err := initiateCredentialStore(app, checks)
	if err != nil {
		app.Close()
		return nil, err
	}

	states := initiateStateStore(ctx, app, checks)
	history := initiateHistory(ctx, app, checks)
	hub := realtime.NewPublishHub(0)
	sinks := []repository.IPublishEventSink{hub}
	sinks = append(sinks, initiateBusSinks(ctx, app)...)

	pub := configuration.C.Publish
	apiClient := &http.Client{Timeout: configuration.Seconds(pub.RequestTimeoutSeconds)}
	// Uploads are bounded per request by the engine, not by the client.
	uploadClient := &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: configuration.Seconds(pub.ChunkTimeoutSeconds),
		MaxIdleConnsPerHost:   4,
	}}

	engine := resumable.NewEngine(uploadClient, resumable.Config{
		ChunkSize:    pub.ChunkSizeBytes,
		MaxRequests:  pub.MaxChunkRequests,
		InitTimeout:  configuration.Seconds(pub.InitTimeoutSeconds),
		ChunkTimeout: configuration.Seconds(pub.ChunkTimeoutSeconds),
	})
	fetcher := media.NewFetcher(uploadClient)
	graphClient := graph.NewClient(apiClient, pub.GraphBaseURL)
	graphOpts := graph.Options{ContainerDelay: configuration.Seconds(pub.ContainerDelaySeconds)}

	registry := dispatch.NewRegistry(
		youtube.NewAdapter(engine, fetcher, youtube.Options{
			UploadURL:     pub.YouTubeUploadURL,
			PrivacyStatus: pub.PrivacyStatus,
			CategoryID:    pub.CategoryID,
			MaxBytes:      pub.MaxVideoBytes,
		}),
		graph.NewInstagramAdapter(graphClient, graphOpts),
		graph.NewFacebookAdapter(graphClient, graphOpts),
	)

	oauthConfigs := configuration.OAuthConfigs()
	configured := make([]string, 0, len(oauthConfigs))
	for p := range oauthConfigs {
		configured = append(configured, string(p))
	}
	logger.GetLogger().WithField("platforms", configured).Info("OAuth clients configured")

	tokens := usecase.NewTokenUsecase(store, oauthConfigs, usecase.TokenOptions{
		MinValidity:    configuration.Seconds(pub.MinValiditySeconds),
		RefreshTimeout: configuration.Seconds(pub.RefreshTimeoutSeconds),
		HTTPClient:     apiClient,
	})

	var captions repository.ICaptionGenerator
	if cg := configuration.C.ContentGen; cg.URL != "" {
		captions = contentgen.NewClient(nil, cg.URL, cg.APIKey, configuration.Seconds(cg.TimeoutSeconds))
	}

	events := usecase.NewEventDispatcher(sinks, pub.EventBuffer, configuration.Seconds(pub.EventTimeoutSeconds))
	// registered after the sinks, so it drains before they close
	app.onClose(events.Close)

	publishUC := usecase.NewPublishUsecase(store, tokens, registry, usecase.PublishDeps{
		Events:   events,
		History:  history,
		Captions: captions,
	}, usecase.PublishOptions{
		MaxConcurrency: pub.MaxConcurrency,
		RateLimits:     rateLimits(pub.RateLimits),
		RunTimeout:     configuration.Seconds(pub.RunTimeoutSeconds),
	})
	// runs before events.Close so background runs can still report
	app.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := publishUC.Wait(ctx); err != nil {
			logger.GetLogger().WithError(err).Warn("Background publish runs still in flight at shutdown")
		}
	})

	resolver := profile.NewResolver(youtube.NewChannelLookup(""), graphClient, apiClient)
	connectionUC := usecase.NewConnectionUsecase(store, states, resolver, oauthConfigs, usecase.ConnectionOptions{
		ExchangeTimeout: configuration.Seconds(pub.RefreshTimeoutSeconds),
		HTTPClient:      apiClient,
	})

	cfg := configuration.C.App
	app.router = server.InitiateRouter(server.Handlers{
		Connection: httpHandler.NewConnectionHandler(connectionUC, cfg.SimulatedEnabled, cfg.OAuthSuccessRedirect),
		Publish:    httpHandler.NewPublishHandler(publishUC, hub, 0),
		Health:     httpHandler.NewHealthHandler(checks),
	}, cfg.SecretKey, cfg.AllowOrigins)
	return app, nil
}

// initiateCredentialStore picks the credential backend from database.vendor
// (DB_VENDOR): postgres (default), mssql, mysql or memory. Production
// defaults to mssql like the rest of the deployment.
func initiateCredentialStore(app *application, checks map[string]httpHandler.Pinger) (repository.ICredential, error) {
	vendor := strings.ToLower(configuration.C.Database.Vendor)
	if vendor == "" {
		vendor = "postgres"
		if env := configuration.Env(); env == "production" || env == "prod" {
			vendor = "mssql"
		}
	}
	log := logger.GetLogger().WithField("vendor", vendor)

	switch vendor {
	case "memory":
		log.Warn("Using in-memory credential store; connections are lost on restart")
		return persistence.NewMemoryCredentialRepository(), nil
	case "mssql":
		db, err := persistence.NewMSSQLDB()
		if err != nil {
			return nil, fmt.Errorf("connect mssql: %w", err)
		}
		app.onClose(func() { _ = db.Close() })
		checks["database"] = sqlPinger(db)
		if err := persistence.EnsureCredentialSchemaMSSQL(db); err != nil {
			return nil, err
		}
		log.Info("Database connected.")
		return persistence.NewCredentialRepositoryMSSQL(db), nil
	case "mysql":
		db, err := persistence.NewMySQLDB()
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		closeGorm(app, db)
		if sqlDB, err := db.DB(); err == nil {
			checks["database"] = sqlPinger(sqlDB)
		}
		if err := persistence.EnsureCredentialSchemaGorm(db); err != nil {
			return nil, err
		}
		log.Info("Database connected.")
		return persistence.NewCredentialRepositoryGorm(db), nil
	case "postgres", "postgresql", "psql":
		db, err := persistence.NewPostgreSQLDB()
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		app.onClose(func() { _ = db.Close() })
		checks["database"] = sqlPinger(db)
		if err := persistence.EnsureCredentialSchema(db); err != nil {
			return nil, err
		}
		log.Info("Database connected.")
		return persistence.NewCredentialRepository(db), nil
	}
	return nil, fmt.Errorf("unknown database vendor %q", vendor)
}

func closeGorm(app *application, db *gorm.DB) {
	app.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
}

func sqlPinger(db *sql.DB) httpHandler.Pinger {
	return httpHandler.PingFunc(db.PingContext)
}

func initiateStateStore(ctx context.Context, app *application, checks map[string]httpHandler.Pinger) repository.IOAuthState {
	rc := configuration.C.RedisClient
	if rc.Host == "" {
		logger.GetLogger().Info("Redis not configured - OAuth state kept in memory")
		return cache.NewMemoryOAuthState(cache.DefaultStateTTL)
	}
	addr := rc.Host
	if rc.Port != "" && !strings.Contains(addr, "://") {
		addr = fmt.Sprintf("%s:%s", rc.Host, rc.Port)
	}
	client, err := cache.NewCache(ctx, addr, rc.Username, rc.Password)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - OAuth state kept in memory")
		return cache.NewMemoryOAuthState(cache.DefaultStateTTL)
	}
	app.onClose(func() { _ = client.Close() })
	checks["redis"] = httpHandler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	logger.GetLogger().Info("Redis client initialized successfully.")
	return cache.NewRedisOAuthState(client, cache.DefaultStateTTL)
}

func initiateHistory(ctx context.Context, app *application, checks map[string]httpHandler.Pinger) repository.IPublishHistory {
	mc := configuration.C.Database.Mongo
	client, err := persistence.NewMongoDb(mc.Host, mc.Port, mc.User, mc.Password, mc.Name)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - publish history kept in memory")
		return persistence.NewMemoryPublishHistory(0)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB ping failed - publish history kept in memory")
		_ = client.Disconnect(context.Background())
		return persistence.NewMemoryPublishHistory(0)
	}
	app.onClose(func() { _ = client.Disconnect(context.Background()) })
	checks["mongo"] = httpHandler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) })

	history := persistence.NewPublishHistoryMongo(client, mc.Name)
	if err := history.EnsureIndexes(pingCtx); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Failed ensuring publish history indexes")
	}
	logger.GetLogger().Info("MongoDB connected successfully")
	return history
}

func initiateBusSinks(ctx context.Context, app *application) []repository.IPublishEventSink {
	var sinks []repository.IPublishEventSink

	if ps := configuration.C.Pubsub; ps.ProjectID != "" {
		client, err := pubsub.NewPubSub(ctx, ps.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while instantiate PubSub")
		} else {
			topic := ps.Topic
			if topic == "" {
				topic = "publish-events"
			}
			sink := pubsub.NewEventSink(client, topic)
			app.onClose(func() {
				sink.Close()
				_ = client.Close()
			})
			sinks = append(sinks, sink)
		}
	}

	if sb := configuration.C.ServiceBus; sb.Namespace != "" {
		client, err := servicebus.NewServiceBus(sb.Namespace)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without Service Bus features")
			return sinks
		}
		queue := sb.Queue
		if queue == "" {
			queue = "publish-runs"
		}
		sink, err := servicebus.NewEventSink(client, queue)
		if err != nil {
			_ = client.Close(context.Background())
			return sinks
		}
		app.onClose(func() {
			sink.Close(context.Background())
			_ = client.Close(context.Background())
		})
		sinks = append(sinks, sink)
	}
	return sinks
}

func rateLimits(raw map[string]float64) map[model.Platform]float64 {
	out := make(map[model.Platform]float64, len(raw))
	for name, perSecond := range raw {
		if p, ok := model.ParsePlatform(name); ok {
			out[p] = perSecond
		}
	}
	return out
}
