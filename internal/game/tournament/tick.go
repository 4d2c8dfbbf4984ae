package tournament

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/game/events"
	"github.com/jkoski/splitsecond/internal/models"
)

// Tick recomputes the live tournament's phase from wall-clock time and
// drives phase-change broadcasts and archival hand-off. Any error probing
// the schedule source or the ranking store skips the whole tick; because the
// phase is re-derived rather than accumulated, a skipped tick can only delay
// a broadcast, never corrupt state.
func (c *Coordinator) Tick(ctx context.Context) {
	now := c.clock.Now()

	oneOffs, daily, err := c.probeSchedule(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("schedule probe failed, skipping tick")
		return
	}

	c.mu.Lock()
	c.pruneAdmittedLocked(now)

	if c.current == nil {
		t := c.admitFromLocked(now, oneOffs, daily)
		if t == nil {
			c.mu.Unlock()
			return
		}
		phase := t.PhaseAt(now)
		c.lastPhase = phase
		payload := c.phaseChangedPayload(*t, phase, now)
		c.mu.Unlock()

		c.invalidateCache()
		c.publisher.PublishPhaseChanged(payload)
		return
	}

	t := *c.current
	phase := t.PhaseAt(now)
	if t.PlayDuration <= 0 {
		// Timing metadata is unexpectedly missing. Treat the tournament as
		// ended, archive best-effort, and let rotation resume.
		log.Error().Str("tournament_id", t.ID.String()).Msg("tournament has no play duration, forcing end")
		phase = models.PhaseEnded
	}
	if phase == c.lastPhase {
		c.mu.Unlock()
		return
	}
	lastPhase := c.lastPhase
	c.mu.Unlock()

	switch phase {
	case models.PhasePlay:
		c.applyPhase(t, phase, now)

	case models.PhaseLeaderboard:
		c.archiveAsync(t, false, nil)
		c.applyPhase(t, phase, now)

	case models.PhaseEnded:
		c.endTournament(ctx, t, now, oneOffs, daily)

	default:
		log.Warn().
			Str("tournament_id", t.ID.String()).
			Str("phase", string(phase)).
			Str("last_phase", string(lastPhase)).
			Msg("unexpected phase transition, ignoring")
	}
}

// RunTicks drives Tick on a fixed cadence until ctx is done. The next tick
// is scheduled only after the previous one returns, so ticks never overlap.
func (c *Coordinator) RunTicks(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("tournament coordinator started")

	timer := c.clock.NewTimer(interval)
	defer timer.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tournament coordinator shutting down")
			return
		case <-timer.Chan():
			c.Tick(ctx)
			timer.Reset(interval)
		}
	}
}

// applyPhase records a phase transition for the current tournament and
// broadcasts it, unless another mutator replaced the tournament meanwhile.
func (c *Coordinator) applyPhase(t models.Tournament, phase models.Phase, now time.Time) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != t.ID {
		c.mu.Unlock()
		return
	}
	c.lastPhase = phase
	payload := c.phaseChangedPayload(t, phase, now)
	c.mu.Unlock()

	c.publisher.PublishPhaseChanged(payload)
	log.Info().
		Str("tournament_id", t.ID.String()).
		Str("phase", string(phase)).
		Msg("tournament phase changed")
}

// endTournament closes out a tournament: final archive and reward
// bookkeeping are handed off fire-and-forget, the ended broadcast carries
// the top winners, and rotation is immediately re-evaluated.
func (c *Coordinator) endTournament(ctx context.Context, t models.Tournament, now time.Time, oneOffs, daily []models.ScheduleEntry) {
	winners, err := c.rankings.TopN(ctx, t.ID, c.topN())
	if err != nil {
		log.Error().
			Err(err).
			Str("tournament_id", t.ID.String()).
			Msg("ranking store probe failed, skipping tick")
		return
	}

	c.mu.Lock()
	if c.current == nil || c.current.ID != t.ID {
		c.mu.Unlock()
		return
	}
	tiers := c.tiers[t.ID]
	delete(c.tiers, t.ID)
	delete(c.targets, t.ID)
	c.current = nil
	c.lastPhase = models.PhaseNone

	next := c.admitFromLocked(now, oneOffs, daily)
	var nextPayload *events.PhaseChangedPayload
	if next != nil {
		phase := next.PhaseAt(now)
		c.lastPhase = phase
		p := c.phaseChangedPayload(*next, phase, now)
		nextPayload = &p
	}
	c.mu.Unlock()

	c.archiveAsync(t, true, winners)
	if len(tiers) > 0 {
		c.rewardsAsync(t, winners, tiers)
	}

	topWinners := make([]events.TopWinner, len(winners))
	for i, w := range winners {
		topWinners[i] = events.TopWinner{PlayerID: w.PlayerID, DisplayName: w.DisplayName, ScoreMs: w.ScoreMs}
	}
	c.publisher.PublishTournamentEnded(events.TournamentEndedPayload{
		TournamentID: t.ID.String(),
		TopWinners:   topWinners,
		EndedAt:      now,
	})
	log.Info().
		Str("tournament_id", t.ID.String()).
		Int("winners", len(winners)).
		Msg("tournament ended")

	c.invalidateCache()
	if nextPayload != nil {
		c.publisher.PublishPhaseChanged(*nextPayload)
	}
}

func (c *Coordinator) probeSchedule(ctx context.Context, now time.Time) (oneOffs, daily []models.ScheduleEntry, err error) {
	until := now.Add(c.cfg.ScheduleLookahead)
	oneOffs, err = c.schedule.ListUpcoming(ctx, now, until)
	if err != nil {
		return nil, nil, err
	}
	daily, err = c.schedule.ListDaily(ctx)
	if err != nil {
		return nil, nil, err
	}
	return oneOffs, daily, nil
}

// admitLocked probes the schedule source itself and degrades to rolling
// rotation when the probe fails. Used on the resolve path, where a session
// must still bind somewhere; Tick probes up front and skips instead.
func (c *Coordinator) admitLocked(ctx context.Context, now time.Time) *models.Tournament {
	oneOffs, daily, err := c.probeSchedule(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("schedule probe failed on resolve, falling back to rotation")
		oneOffs, daily = nil, nil
	}
	return c.admitFromLocked(now, oneOffs, daily)
}

// admitFromLocked picks the tournament that should be live right now.
// Custom tournaments take priority over the default rolling slot; rolling
// rotation requires auto-rotate.
func (c *Coordinator) admitFromLocked(now time.Time, oneOffs, daily []models.ScheduleEntry) *models.Tournament {
	for _, entry := range oneOffs {
		if entry.Kind != models.ScheduleOneOff {
			continue
		}
		total := entry.PlayDuration + entry.LeaderboardDuration
		if entry.FireAt.After(now) || !now.Before(entry.FireAt.Add(total)) {
			continue
		}
		if _, fired := c.admitted[entry.ID]; fired {
			continue
		}
		return c.startLocked(entry, models.OriginScheduled, entry.FireAt, now)
	}

	for _, entry := range daily {
		occurrence := time.Date(now.Year(), now.Month(), now.Day(), entry.DailyHour, entry.DailyMinute, 0, 0, now.Location())
		total := entry.PlayDuration + entry.LeaderboardDuration
		if occurrence.After(now) || !now.Before(occurrence.Add(total)) {
			continue
		}
		if fired, ok := c.admitted[entry.ID]; ok && fired.Equal(occurrence) {
			continue
		}
		return c.startLocked(entry, models.OriginDaily, occurrence, now)
	}

	if !c.autoRotate {
		return nil
	}
	slot := c.cfg.PlayDuration + c.cfg.LeaderboardDuration
	t := models.Tournament{
		ID:                  uuid.New(),
		Origin:              models.OriginRolling,
		Start:               now.Truncate(slot),
		PlayDuration:        c.cfg.PlayDuration,
		LeaderboardDuration: c.cfg.LeaderboardDuration,
	}
	c.current = &t
	log.Info().
		Str("tournament_id", t.ID.String()).
		Time("start", t.Start).
		Msg("rolling tournament admitted")
	return c.current
}

func (c *Coordinator) startLocked(entry models.ScheduleEntry, origin models.Origin, start, now time.Time) *models.Tournament {
	t := models.Tournament{
		ID:                  uuid.New(),
		Origin:              origin,
		Start:               start,
		PlayDuration:        entry.PlayDuration,
		LeaderboardDuration: entry.LeaderboardDuration,
	}
	c.current = &t
	c.admitted[entry.ID] = start
	if len(entry.RewardTiers) > 0 {
		c.tiers[t.ID] = entry.RewardTiers
	}
	log.Info().
		Str("tournament_id", t.ID.String()).
		Str("schedule_entry", entry.ID.String()).
		Str("origin", string(origin)).
		Time("start", start).
		Msg("scheduled tournament admitted")
	return c.current
}

// pruneAdmittedLocked bounds the fired-occurrence memory; two days covers
// every daily re-fire window.
func (c *Coordinator) pruneAdmittedLocked(now time.Time) {
	cutoff := now.Add(-48 * time.Hour)
	for id, start := range c.admitted {
		if start.Before(cutoff) {
			delete(c.admitted, id)
		}
	}
}

func (c *Coordinator) topN() int64 {
	if c.cfg.TopN <= 0 {
		return 10
	}
	return c.cfg.TopN
}

func (c *Coordinator) invalidateCache() {
	if c.cache != nil {
		c.cache.Invalidate()
	}
}

// archiveAsync hands a snapshot to the durable archive without ever blocking
// the tick or the scoring path. When top is nil the goroutine reads the
// leaderboard itself.
func (c *Coordinator) archiveAsync(t models.Tournament, final bool, top []models.RankingEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.archiveTimeout())
		defer cancel()

		entries := top
		if entries == nil {
			var err error
			entries, err = c.rankings.TopN(ctx, t.ID, c.topN())
			if err != nil {
				log.Warn().Err(err).Str("tournament_id", t.ID.String()).Msg("snapshot read failed, archiving empty")
				entries = nil
			}
		}
		if err := c.archive.RecordTournament(ctx, t, final, entries); err != nil {
			log.Error().
				Err(err).
				Str("tournament_id", t.ID.String()).
				Bool("final", final).
				Msg("tournament archive failed")
		}
	}()
}

func (c *Coordinator) rewardsAsync(t models.Tournament, winners []models.RankingEntry, tiers []models.RewardTier) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.archiveTimeout())
		defer cancel()

		if err := c.archive.RecordRewards(ctx, t, winners, tiers); err != nil {
			log.Error().Err(err).Str("tournament_id", t.ID.String()).Msg("reward bookkeeping failed")
		}
	}()
}

func (c *Coordinator) archiveTimeout() time.Duration {
	if c.cfg.ArchiveTimeout <= 0 {
		return 10 * time.Second
	}
	return c.cfg.ArchiveTimeout
}
