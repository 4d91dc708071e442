package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/domain/model"
	"github.com/satorinet/neuronfeed/internal/port/cache"
	"github.com/satorinet/neuronfeed/internal/port/database"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/port/producer"
	"github.com/satorinet/neuronfeed/internal/resilience"
)

// EngineStatus summarizes what the engine last announced.
type EngineStatus struct {
	State   model.EngineState `json:"state"`
	Ready   bool              `json:"ready"`
	Synergy bool              `json:"synergy"`
	Models  int               `json:"models"`
	Catalog resilience.State  `json:"catalog"`
}

// EngineService tracks the engine lifecycle and its model catalog and hands
// out one prediction producer per model. It implements producer.Source.
type EngineService struct {
	queue       messagequeue.Queue
	store       database.ModelStore
	breaker     *resilience.Breaker
	overviews   cache.Cache
	overviewTTL time.Duration

	mu        sync.RWMutex
	state     model.EngineState // empty until the first announcement
	synergy   bool
	channels  json.RawMessage
	lastKnown []model.Model
	hydrated  bool
}

// NewEngineService creates an EngineService. Catalog reads go through breaker
// and fall back to the last known model set while it is open.
func NewEngineService(q messagequeue.Queue, store database.ModelStore, breaker *resilience.Breaker, overviews cache.Cache, overviewTTL time.Duration) *EngineService {
	return &EngineService{
		queue:       q,
		store:       store,
		breaker:     breaker,
		overviews:   overviews,
		overviewTTL: overviewTTL,
	}
}

// Run consumes engine lifecycle announcements and prediction overviews until
// ctx is cancelled.
func (s *EngineService) Run(ctx context.Context) error {
	s.hydrate(ctx)

	stopLifecycle, err := s.queue.Subscribe(ctx, messagequeue.SubjectEngineLifecycle, s.handleLifecycle)
	if err != nil {
		return fmt.Errorf("subscribe lifecycle: %w", err)
	}
	defer stopLifecycle()

	stopPredictions, err := s.queue.Subscribe(ctx, messagequeue.SubjectPredictions, s.recordPrediction)
	if err != nil {
		return fmt.Errorf("subscribe predictions: %w", err)
	}
	defer stopPredictions()

	slog.Info("engine registry running")
	<-ctx.Done()
	return nil
}

// hydrate seeds the fallback list from the catalog. Readiness still waits for
// the engine's own announcement.
func (s *EngineService) hydrate(ctx context.Context) {
	models, err := s.store.ListModels(ctx)
	if err != nil {
		slog.Warn("catalog hydrate failed", "error", err)
		return
	}
	s.mu.Lock()
	if !s.hydrated {
		s.lastKnown = models
		s.hydrated = true
	}
	s.mu.Unlock()
}

func (s *EngineService) handleLifecycle(ctx context.Context, _ string, data []byte) error {
	var a model.Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode announcement: %w", err)
	}
	return s.HandleAnnouncement(ctx, a)
}

// HandleAnnouncement applies one engine lifecycle announcement. Invalid
// models are skipped. A ready announcement rewrites the catalog.
func (s *EngineService) HandleAnnouncement(ctx context.Context, a model.Announcement) error {
	models := make([]model.Model, 0, len(a.Models))
	for i := range a.Models {
		m := a.Models[i]
		if err := m.Validate(); err != nil {
			slog.WarnContext(ctx, "skipping invalid model", "id", m.ID, "error", err)
			continue
		}
		if m.Subject == "" {
			m.Subject = model.PredictionSubject(m.ID)
		}
		m.Active = true
		models = append(models, m)
	}

	var storeErr error
	if a.State == model.EngineReady {
		ctx, span := cfotel.StartCatalogSpan(ctx, "replace")
		storeErr = s.breaker.Execute(func() error {
			return s.store.ReplaceModels(ctx, models)
		})
		span.End()
		if storeErr != nil {
			slog.WarnContext(ctx, "catalog update failed", "models", len(models), "error", storeErr)
		}
	}

	s.mu.Lock()
	s.state = a.State
	s.synergy = a.Synergy
	s.channels = slices.Clone(a.Channels)
	if a.State == model.EngineReady {
		s.lastKnown = models
		s.hydrated = true
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "engine announced", "state", string(a.State), "models", len(models), "synergy", a.Synergy)
	if storeErr != nil {
		return fmt.Errorf("replace models: %w", storeErr)
	}
	return nil
}

// Channels returns the peer channel listing from the last announcement, or
// an empty JSON array when none was announced.
func (s *EngineService) Channels() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.channels) == 0 {
		return json.RawMessage("[]")
	}
	return slices.Clone(s.channels)
}

// Status returns the last announced engine state.
func (s *EngineService) Status() EngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EngineStatus{
		State:   s.state,
		Ready:   s.state == model.EngineReady,
		Synergy: s.synergy,
		Models:  len(s.lastKnown),
		Catalog: s.breaker.State(),
	}
}

// Models returns the active catalog, or the last known list if the catalog
// is unavailable.
func (s *EngineService) Models(ctx context.Context) ([]model.Model, error) {
	ctx, span := cfotel.StartCatalogSpan(ctx, "list")
	defer span.End()

	var models []model.Model
	err := s.breaker.Execute(func() error {
		var err error
		models, err = s.store.ListModels(ctx)
		return err
	})
	if err != nil {
		s.mu.RLock()
		fallback, ok := slices.Clone(s.lastKnown), s.hydrated
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("list models: %w", err)
		}
		slog.WarnContext(ctx, "catalog unavailable, serving last known models",
			"error", err, "circuit_open", errors.Is(err, resilience.ErrCircuitOpen))
		return fallback, nil
	}
	s.mu.Lock()
	s.lastKnown = models
	s.hydrated = true
	s.mu.Unlock()
	return models, nil
}

// Model returns one catalog entry.
func (s *EngineService) Model(ctx context.Context, id string) (*model.Model, error) {
	return s.store.GetModel(ctx, id)
}

// Producers returns one producer per active model. See producer.Source.
func (s *EngineService) Producers(ctx context.Context) ([]producer.Producer, error) {
	if !s.Status().Ready {
		return nil, feed.ErrEngineNotReady
	}
	models, err := s.Models(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, feed.ErrNoProducers
	}
	out := make([]producer.Producer, 0, len(models))
	for i := range models {
		// Catalog rows written before subjects were validated may carry any
		// subject; only the one derived from the id is ever bound.
		id := models[i].ID
		out = append(out, NewQueueProducer(id, model.PredictionSubject(id), s.queue, DecodeUpdate))
	}
	return out, nil
}

func overviewKey(id string) string { return "overview:" + id }

// recordPrediction keeps the latest overview per model for the REST API.
func (s *EngineService) recordPrediction(ctx context.Context, subject string, data []byte) error {
	id, ok := modelIDFromSubject(subject)
	if !ok {
		return nil
	}
	if err := s.overviews.Set(ctx, overviewKey(id), data, s.overviewTTL); err != nil {
		slog.WarnContext(ctx, "overview cache write failed", "model", id, "error", err)
	}
	return nil
}

// Overview returns the latest prediction overview published by a model.
func (s *EngineService) Overview(ctx context.Context, id string) (json.RawMessage, error) {
	data, ok, err := s.overviews.Get(ctx, overviewKey(id))
	if err != nil {
		return nil, fmt.Errorf("overview %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("overview %s: %w", id, domain.ErrNotFound)
	}
	return json.RawMessage(data), nil
}

func modelIDFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, model.SubjectPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".prediction")
	if !ok || id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}
