package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"coldroute/internal/config"
	"coldroute/internal/oracle"
	"coldroute/internal/plan"
	"coldroute/internal/ratelimit"
	"coldroute/internal/store"
)

type Server struct {
	Store   store.Store
	Planner *plan.Planner
	Broker  EventBroker
	Cfg     config.Config
	Log     *logrus.Logger
}

// NewServer wires store, broker, oracle and planner from config. With no
// DATABASE_URL the in-memory store is used; with no oracle key (or mock
// forced) the deterministic mock sequencer stands in.
func NewServer(cfg config.Config, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}

	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		st = pg
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis broker unavailable, falling back to in-memory")
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	var seq oracle.Sequencer
	if cfg.Oracle.Mock || cfg.Oracle.APIKey == "" {
		seq = oracle.NewMockSequencer()
	} else {
		client, err := oracle.NewClient(oracle.ClientConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.OracleTimeout(),
		})
		if err != nil {
			return nil, err
		}
		seq = client
	}

	limiter := ratelimit.New(cfg.Limit.Ceiling, cfg.LimitWindow())
	planner := plan.NewPlanner(seq, limiter, cfg.Oracle.CallsPerSec, log)

	s := &Server{Store: st, Planner: planner, Broker: broker, Cfg: cfg, Log: log}
	planner.Notify = func(eventType string, data map[string]any) {
		if id, ok := data["runId"].(string); ok {
			s.Broker.Publish(id, PlanEvent{Type: eventType, Data: data})
		}
	}
	return s, nil
}

// Limiter exposes the planner's limiter for janitor startup.
func (s *Server) Limiter() *ratelimit.Limiter { return s.Planner.Limiter }

// callerID identifies the client for rate limiting. Empty means anonymous,
// which the limiter waves through.
func callerID(r *http.Request) string { return r.Header.Get("X-Caller-Id") }
