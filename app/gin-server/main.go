package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rajmehta89/call-agent-backend/config"
	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/api/handlers"
	"github.com/rajmehta89/call-agent-backend/internal/api/middleware"
	"github.com/rajmehta89/call-agent-backend/internal/api/routes"
	"github.com/rajmehta89/call-agent-backend/internal/cache"
	"github.com/rajmehta89/call-agent-backend/internal/interest"
	"github.com/rajmehta89/call-agent-backend/internal/logger"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/providers/stt"
	"github.com/rajmehta89/call-agent-backend/internal/providers/tts"
	mongorepo "github.com/rajmehta89/call-agent-backend/internal/repositories/mongo"
	pgrepo "github.com/rajmehta89/call-agent-backend/internal/repositories/postgres"
	"github.com/rajmehta89/call-agent-backend/internal/responder"
	"github.com/rajmehta89/call-agent-backend/internal/services"
	"github.com/rajmehta89/call-agent-backend/internal/session"
	"github.com/rajmehta89/call-agent-backend/internal/storage"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/rajmehta89/call-agent-backend/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	settings := config.LoadSettings()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(settings.MongoURI); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	db := config.MongoDatabase(settings.MongoDB)
	if err := config.EnsureMongoIndexes(db); err != nil {
		log.WithError(err).Warn("MongoDB index setup failed")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL (optional turn log)
	if err := config.InitPostgres(settings.PostgresURI); err != nil {
		log.WithError(err).Warn("PostgreSQL unavailable, turn log disabled")
	} else {
		log.Info("PostgreSQL connected")
	}

	// Init Redis (optional, shared flags and finalize queue)
	if err := config.InitRedis(settings.RedisAddr); err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-process flags")
	} else {
		log.Info("Redis connected")
	}

	agentCfg, err := agentconfig.NewStore(settings.AgentConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("agent config load error")
	}

	speech := newSTT(ctx, settings, log)
	defer speech.Close()
	voice := newTTS(ctx, settings, log)
	defer voice.Close()
	model := newLLM(ctx, settings, log)
	if model != nil {
		defer model.Close()
	}

	// Stores and services
	leads := mongorepo.NewLeadRepo(db)
	calls := mongorepo.NewCallRepo(db)
	callLog := services.NewCallLogService(calls, leads, log)

	var (
		flags     cache.Flags
		callMeta  cache.Cache
		turnLog   services.TurnLogService
		analyses  pgrepo.AnalysisRepository
		archive   services.Archiver
		finalizer session.Finalizer
	)
	if config.RedisClient != nil {
		rc := cache.NewRedis(config.RedisClient)
		flags, callMeta = rc, rc
	} else {
		mem := cache.NewMemory()
		flags, callMeta = mem, mem
	}
	if config.PostgresDB != nil {
		turnLog = services.NewTurnLogService(pgrepo.NewTurnRepo(config.PostgresDB))
		analyses = pgrepo.NewAnalysisRepo(config.PostgresDB)
	}
	if settings.TranscriptBucket != "" {
		up, err := storage.NewGCSUploader(ctx, settings.TranscriptBucket)
		if err != nil {
			log.WithError(err).Warn("transcript archive disabled")
		} else {
			defer up.Close()
			archive = storage.NewTranscriptArchive(up, "calls")
		}
	}

	callFinalizer := &services.CallFinalizer{
		Calls:    callLog,
		Analyzer: interest.NewClassifier(model, settings.LLMTimeout, log),
		Analyses: analyses,
		Archive:  archive,
		Log:      log,
	}
	finalizer = callFinalizer
	if config.RedisClient != nil {
		pool := &workers.FinalizeWorkerPool{
			Redis:     config.RedisClient,
			Finalizer: callFinalizer,
			Logger:    log,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Warn("finalize workers not started")
		} else {
			finalizer = &workers.QueueFinalizer{Redis: config.RedisClient, Fallback: callFinalizer, Log: log}
		}
	}

	replyOpts := responder.DefaultOptions
	if settings.LLMModel != "" {
		replyOpts.Model = settings.LLMModel
	}

	registry := session.NewRegistry()
	deps := session.Deps{
		STT:       speech,
		TTS:       voice,
		Responder: responder.New(model, agentCfg, replyOpts, settings.LLMTimeout, log),
		Config:    agentCfg,
		Finalizer: finalizer,
		Turns:     turnLog,
		Registry:  registry,
		Log:       log,
		Timing: session.Timing{
			HoldWindow:  settings.HoldWindow,
			NudgeAfter:  settings.NudgeAfter,
			IdleAfter:   settings.IdleAfter,
			HangupDelay: settings.HangupDelay,
			SpeakPad:    settings.SpeakPad,
		},
	}

	piopiy := telephony.NewClient(settings.PiopiyAppID, settings.PiopiySecret, settings.PiopiyFromNumber, settings.PiopiyAPIURL)
	if !piopiy.Configured() {
		log.Warn("Piopiy credentials missing, outbound calls disabled")
	}

	// Start Gin server
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Piopiy: handlers.NewPiopiyHandler(settings.WebSocketURL, flags, services.NewCallEventService(leads, flags, log), log),
		Calls: handlers.NewCallHandler(piopiy, settings.PublicBaseURL, callMeta, callLog, registry, log).
			WithTurnLog(turnLog).
			WithHistory(calls),
		Media:     handlers.NewMediaHandler(deps, callMeta, log),
		JWTSecret: settings.APIJWTSecret,
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", settings.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	// hijacked media sockets are not covered by Shutdown
	for _, snap := range registry.Snapshots() {
		if s, ok := registry.Get(snap.SessionID); ok {
			s.Close("shutdown")
		}
	}
	if err := config.CloseRedis(); err != nil {
		log.WithError(err).Warn("redis close")
	}
	if err := config.ClosePostgres(); err != nil {
		log.WithError(err).Warn("postgres close")
	}
	if err := config.CloseMongo(shutdownCtx); err != nil {
		log.WithError(err).Warn("mongo disconnect")
	}
}

func newSTT(ctx context.Context, s config.Settings, log *logrus.Logger) stt.Provider {
	switch s.STTProvider {
	case "deepgram":
		p, err := stt.NewDeepgram(s.DeepgramAPIKey, s.DeepgramURL, s.DeepgramInputRate, log)
		if err == nil {
			return p
		}
		log.WithError(err).Warn("Deepgram unavailable, speech recognition simulated")
	case "google":
		p, err := stt.NewGoogleSpeech(ctx, "en-IN", log)
		if err == nil {
			return p
		}
		log.WithError(err).Warn("Google Speech unavailable, speech recognition simulated")
	}
	return stt.Simulated{}
}

func newTTS(ctx context.Context, s config.Settings, log *logrus.Logger) tts.Provider {
	if s.GoogleTTSEnabled {
		p, err := tts.NewGoogleTTS(ctx, s.TTSSpeakingRate, s.TTSPitch)
		if err == nil {
			return p
		}
		log.WithError(err).Warn("Google TTS unavailable, synthesis simulated")
	}
	return tts.Simulated{}
}

// newLLM returns nil when no model is configured; replies then fall back to fixed apologies.
func newLLM(ctx context.Context, s config.Settings, log *logrus.Logger) llm.Provider {
	switch s.LLMProvider {
	case "vertex":
		p, err := llm.NewVertexGemini(ctx, s.VertexProject, s.VertexLocation, s.VertexModel)
		if err == nil {
			return p
		}
		log.WithError(err).Error("Vertex AI unavailable")
	default:
		p, err := llm.NewGroq(s.GroqAPIKey, s.GroqBaseURL, s.LLMModel, nil)
		if err == nil {
			return p
		}
		log.WithError(err).Error("Groq unavailable")
	}
	return nil
}
