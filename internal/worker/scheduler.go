package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/memtide/memtide/internal/consolidation"
	"github.com/memtide/memtide/pkg/models"
)

// MemoryProvider is the subset of store methods needed by the scheduler.
type MemoryProvider interface {
	ListUnconsolidated(ctx context.Context, limit int) ([]models.Memory, error)
	MarkConsolidated(ctx context.Context, ids []string) error
	InsertConsolidated(ctx context.Context, rec *models.ConsolidatedMemory) error
}

// SchedulerConfig contains scheduling intervals and consolidation knobs.
type SchedulerConfig struct {
	// TagInterval is the period between tag-mode passes (default 1h).
	TagInterval time.Duration `json:"tag_interval"`
	// ContentInterval is the period between content-mode passes (default 30m).
	ContentInterval time.Duration `json:"content_interval"`
	// BatchSize is how many unconsolidated memories a pass pulls (default 100).
	BatchSize int `json:"batch_size"`
	// Threshold is the minimum content similarity for merging (default 0.7).
	Threshold float64 `json:"threshold"`
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TagInterval:     time.Hour,
		ContentInterval: 30 * time.Minute,
		BatchSize:       consolidation.DefaultBatchSize,
		Threshold:       consolidation.DefaultThreshold,
	}
}

// Scheduler runs periodic consolidation passes against the store. The
// engine itself never touches storage; the scheduler gathers the batch,
// persists whatever the engine returns, and stamps the consumed
// originals.
type Scheduler struct {
	store  MemoryProvider
	config SchedulerConfig
	logger zerolog.Logger
	stopCh chan struct{}
}

// NewScheduler creates a new consolidation scheduler.
func NewScheduler(store MemoryProvider, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = consolidation.DefaultBatchSize
	}
	if config.Threshold <= 0 {
		config.Threshold = consolidation.DefaultThreshold
	}
	return &Scheduler{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "consolidation-scheduler").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler's ticker loops. Call from a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("tag_interval", s.config.TagInterval).
		Dur("content_interval", s.config.ContentInterval).
		Float64("threshold", s.config.Threshold).
		Msg("Consolidation scheduler started")

	tagTicker := time.NewTicker(s.config.TagInterval)
	contentTicker := time.NewTicker(s.config.ContentInterval)
	defer tagTicker.Stop()
	defer contentTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Consolidation scheduler stopping (context done)")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Consolidation scheduler stopping (stop signal)")
			return
		case <-tagTicker.C:
			if _, err := s.RunTagPass(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Tag consolidation pass failed")
			}
		case <-contentTicker.C:
			if _, err := s.RunContentPass(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Content consolidation pass failed")
			}
		}
	}
}

// Stop signals the scheduler to shut down gracefully.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		// Already stopped
	default:
		close(s.stopCh)
	}
}

// RunTagPass runs one tag-mode consolidation pass with configured defaults.
func (s *Scheduler) RunTagPass(ctx context.Context) ([]models.ConsolidatedMemory, error) {
	return s.RunPass(ctx, consolidation.ModeTag, 0, 0)
}

// RunContentPass runs one content-mode consolidation pass with configured
// defaults.
func (s *Scheduler) RunContentPass(ctx context.Context) ([]models.ConsolidatedMemory, error) {
	return s.RunPass(ctx, consolidation.ModeContent, 0, 0)
}

// RunPass gathers unconsolidated memories, runs one engine pass in the
// given mode, persists the consolidated records, and marks their sources.
// A fresh engine (and fresh caches) is used per pass; batchSize and
// threshold fall back to the scheduler's configuration when zero.
func (s *Scheduler) RunPass(ctx context.Context, mode string, batchSize int, threshold float64) ([]models.ConsolidatedMemory, error) {
	start := time.Now()

	if batchSize <= 0 {
		batchSize = s.config.BatchSize
	}
	if threshold <= 0 {
		threshold = s.config.Threshold
	}

	memories, err := s.store.ListUnconsolidated(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("list unconsolidated: %w", err)
	}
	if len(memories) < 2 {
		return nil, nil
	}

	engine := consolidation.NewEngine()

	var records []models.ConsolidatedMemory
	switch mode {
	case consolidation.ModeTag:
		records = engine.ConsolidateByTag(memories)
	case consolidation.ModeContent:
		records = engine.ConsolidateByContent(memories, batchSize, threshold)
	default:
		return nil, fmt.Errorf("unknown consolidation mode %q", mode)
	}

	stored := 0
	for i := range records {
		rec := &records[i]
		if err := s.store.InsertConsolidated(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to store consolidated record")
			continue
		}
		if err := s.store.MarkConsolidated(ctx, rec.SourceIDs); err != nil {
			s.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to mark source memories")
		}
		stored++
	}

	s.logger.Info().
		Str("mode", mode).
		Int("input", len(memories)).
		Int("consolidated", len(records)).
		Int("stored", stored).
		Dur("elapsed", time.Since(start)).
		Msg("Consolidation pass complete")

	return records, nil
}

// RunAll triggers both consolidation modes in sequence.
func (s *Scheduler) RunAll(ctx context.Context) error {
	if _, err := s.RunTagPass(ctx); err != nil {
		return err
	}
	_, err := s.RunContentPass(ctx)
	return err
}
