package seeker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mev-protocol/oev-seeker/internal/pkg/retry"
	"github.com/mev-protocol/oev-seeker/internal/watchlist"
)

// Bootstrap builds the watch list and the auction log cache concurrently,
// then expedites any bid a previous run left active.
func (s *Seeker) Bootstrap(ctx context.Context) error {
	loaded := s.loadPersisted()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return retry.DoVoid(gctx, s.config.Retry, nil, retry.LogRetry("watch list backfill"), func(ctx context.Context) error {
			var err error
			if loaded {
				_, err = s.WatchList.Refresh(ctx)
			} else {
				_, err = s.WatchList.Backfill(ctx)
			}
			return err
		})
	})
	g.Go(func() error {
		return retry.DoVoid(gctx, s.config.Retry, nil, retry.LogRetry("auction log sync"), s.syncLogs)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.Metrics.WatchedAccounts.Set(float64(len(s.Store.Snapshot().WatchList.Accounts)))

	if n := s.Bids.ExpediteStale(ctx); n > 0 {
		log.Info().Int("bids", n).Msg("Expedited bids left from a previous run")
	}
	s.checkOracle(ctx)

	s.ready.Store(true)
	snap := s.Store.Snapshot()
	log.Info().
		Int("watched", len(snap.WatchList.Accounts)).
		Uint64("watchListBlock", snap.WatchList.LastBlock).
		Int("auctionEvents", len(snap.AuctionLogs.Events)).
		Msg("Bootstrap complete")
	return nil
}

func (s *Seeker) loadPersisted() bool {
	if !s.config.LoadPersisted || s.config.WatchListPath == "" {
		return false
	}
	wl, err := watchlist.Load(s.config.WatchListPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", s.config.WatchListPath).Msg("No persisted watch list")
		} else {
			log.Warn().Err(err).Str("path", s.config.WatchListPath).Msg("Ignoring persisted watch list")
		}
		return false
	}
	s.Store.AddAccounts(wl.Accounts, wl.LastBlock)
	log.Info().Int("accounts", len(wl.Accounts)).Uint64("lastBlock", wl.LastBlock).Msg("Loaded persisted watch list")
	return true
}

// checkOracle warns when the pool does not read prices from the router
// the scanner uses
func (s *Seeker) checkOracle(ctx context.Context) {
	if s.Oracle == nil {
		return
	}
	oracle, err := s.Oracle.Oracle(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read lending pool oracle")
		return
	}
	if oracle != s.config.PriceRouter {
		log.Warn().
			Str("oracle", oracle.Hex()).
			Str("priceRouter", s.config.PriceRouter.Hex()).
			Msg("Lending pool oracle differs from configured price router")
	}
}

// Start runs the attempt, refresh and persistence loops until Stop
func (s *Seeker) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("seeker already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	log.Info().
		Dur("loopInterval", s.config.LoopInterval).
		Dur("refreshInterval", s.config.RefreshInterval).
		Bool("persist", s.config.Persist).
		Msg("Starting seeker")

	s.wg.Add(2)
	go s.loop(ctx, "attempt", s.config.LoopInterval, s.Step)
	go s.loop(ctx, "refresh", s.config.RefreshInterval, s.refresh)
	if s.config.Persist && s.config.WatchListPath != "" {
		s.wg.Add(1)
		go s.loop(ctx, "persist", s.config.PersistInterval, func(context.Context) error { return s.persist() })
	}
	return nil
}

// Stop ends the loops, abandons pending fulfillment reports and writes
// the watch list one last time
func (s *Seeker) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	log.Info().Msg("Stopping seeker")
	s.wg.Wait()
	s.Executor.Stop()
	s.ready.Store(false)

	if s.config.Persist && s.config.WatchListPath != "" {
		if err := s.persist(); err != nil {
			log.Error().Err(err).Msg("Final watch list save failed")
		}
	}
}

func (s *Seeker) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := retry.DoVoid(ctx, s.config.Retry, func(error) bool { return ctx.Err() == nil }, retry.LogRetry(name), fn)
		if err != nil && ctx.Err() == nil {
			s.Metrics.LoopErrors.WithLabelValues(name).Inc()
			log.Error().Err(err).Str("loop", name).Msg("Loop iteration failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Seeker) persist() error {
	wl := s.Store.Snapshot().WatchList
	if err := watchlist.Save(s.config.WatchListPath, wl); err != nil {
		return err
	}
	log.Debug().Int("accounts", len(wl.Accounts)).Uint64("lastBlock", wl.LastBlock).Msg("Watch list saved")
	return nil
}
