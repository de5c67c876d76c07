package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/noteduco342/courtside-chat/internal/config"
	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/rs/zerolog"
)

const (
	DefaultCron       = "*/1 * * * *"
	DefaultStaleAfter = 5 * time.Minute
	// Away records this many stale periods old go offline.
	offlineFactor = 4
	batchSize     = 200
	maxBatches    = 50
)

type StaleLister interface {
	ListStale(ctx context.Context, status models.PresenceStatus, seenBefore time.Time, limit int) ([]models.PresenceRecord, error)
}

type Demoter interface {
	Demote(ctx context.Context, rec models.PresenceRecord, status models.PresenceStatus) error
}

// PresenceSweeper demotes presence records whose owners stopped reporting.
type PresenceSweeper struct {
	stale      StaleLister
	demoter    Demoter
	cron       string
	staleAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

type SweepResult struct {
	Away    int
	Offline int
}

func NewPresenceSweeper(stale StaleLister, demoter Demoter, cfg config.PresenceConfig, log zerolog.Logger) (*PresenceSweeper, error) {
	cron := cfg.SweepCron
	if cron == "" {
		cron = DefaultCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid presence sweep cron expression: %s", cron)
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &PresenceSweeper{
		stale:      stale,
		demoter:    demoter,
		cron:       cron,
		staleAfter: staleAfter,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start runs the sweeper on its cron schedule until ctx is done.
func (s *PresenceSweeper) Start(ctx context.Context) {
	s.log.Info().Str("cron", s.cron).Dur("stale_after", s.staleAfter).Msg("presence sweeper started")
	go s.run(ctx)
}

func (s *PresenceSweeper) run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.cron).Msg("next tick failed")
			next = s.now().Add(30 * time.Second)
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("presence sweeper stopping")
			return
		case <-time.After(time.Until(next)):
		}

		res, err := s.RunOnce(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("presence sweep failed")
			continue
		}
		if res.Away > 0 || res.Offline > 0 {
			s.log.Info().Int("away", res.Away).Int("offline", res.Offline).Msg("presence sweep")
		}
	}
}

// RunOnce demotes online records idle past the stale window to away, then away
// records idle past offlineFactor windows to offline.
func (s *PresenceSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	n, err := s.demote(ctx, models.PresenceOnline, models.PresenceAway, now.Add(-s.staleAfter))
	res.Away = n
	if err != nil {
		return res, err
	}
	n, err = s.demote(ctx, models.PresenceAway, models.PresenceOffline, now.Add(-offlineFactor*s.staleAfter))
	res.Offline = n
	return res, err
}

func (s *PresenceSweeper) demote(ctx context.Context, from, to models.PresenceStatus, seenBefore time.Time) (int, error) {
	total := 0
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		recs, err := s.stale.ListStale(ctx, from, seenBefore, batchSize)
		if err != nil {
			return total, fmt.Errorf("list stale %s: %w", from, err)
		}
		failed := 0
		for _, rec := range recs {
			if err := s.demoter.Demote(ctx, rec, to); err != nil {
				failed++
				s.log.Warn().Err(err).Str("user_id", rec.UserID.String()).Str("room_id", rec.RoomID.String()).Msg("demote failed")
				continue
			}
			total++
			metrics.PresenceDemotions.Inc()
		}
		// A short batch means we drained the backlog. Failures would come back
		// on the next query, so stop and retry on the next tick.
		if len(recs) < batchSize || failed > 0 {
			break
		}
	}
	return total, nil
}
