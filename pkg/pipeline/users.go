package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/table"
)

// UsersResult is the outcome of resolving logins
type UsersResult struct {
	Streamers []StreamerRef
	Missing   []string
	Added     int
}

// StreamerRef pairs a login with its broadcaster id
type StreamerRef struct {
	ID    string
	Login string
}

// IDs returns the broadcaster ids in resolution order
func (r *UsersResult) IDs() []string {
	ids := make([]string, len(r.Streamers))
	for i, s := range r.Streamers {
		ids[i] = s.ID
	}
	return ids
}

// ResolveUsers looks up logins, fetches follower counts and merges the
// streamers into the users table. Unknown logins are logged and returned
// in Missing. A failed follower lookup leaves that count at zero.
func (p *Pipeline) ResolveUsers(ctx context.Context, logins []string) (*UsersResult, error) {
	const op = "pipeline.ResolveUsers"
	start := time.Now()

	if len(logins) == 0 {
		return nil, errors.New(errors.KindInvalidInput, op, "no logins given")
	}

	p.progress.StageStarted(StageUsers, len(logins))
	defer p.progress.StageFinished(StageUsers)

	streamers, missing, err := p.helix.UsersByLogin(ctx, logins)
	if err != nil {
		return nil, err
	}
	for _, login := range missing {
		p.logger.WithField("login", login).Warn("login did not resolve to a broadcaster")
		p.progress.EntityDone(StageUsers, login, errors.New(errors.KindNotFound, op, "unknown login"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Fetch.Concurrency)
	for i := range streamers {
		g.Go(func() error {
			n, err := p.helix.FollowerCount(gctx, streamers[i].ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.WithError(err).WithField("user_id", streamers[i].ID).Warn("failed to fetch follower count")
				return nil
			}
			streamers[i].FollowerCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := table.NewStore(p.layout.UsersTable(), []string{"user_id"}, userColumns...)
	records := make([]map[string]string, len(streamers))
	res := &UsersResult{Missing: missing}
	for i, s := range streamers {
		records[i] = userRow(s)
		res.Streamers = append(res.Streamers, StreamerRef{ID: s.ID, Login: s.Login})
		p.progress.EntityDone(StageUsers, s.Login, nil)
	}
	stats, err := store.AppendRecords(records)
	if err != nil {
		return nil, errors.Wrap(errors.KindFatalSetup, op, err)
	}
	res.Added = stats.Added

	p.logger.InfoWithFields("resolved streamers", map[string]interface{}{
		"requested": len(logins),
		"resolved":  len(streamers),
		"missing":   len(missing),
		"added":     stats.Added,
		"elapsed":   time.Since(start),
	})
	p.metrics.ObserveStage(StageUsers, time.Since(start))
	return res, nil
}

// KnownUsers maps login to broadcaster id from the users table
func (p *Pipeline) KnownUsers() (map[string]string, error) {
	t, err := table.ReadOrCreate(p.layout.UsersTable(), userColumns...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, t.Len())
	for i := 0; i < t.Len(); i++ {
		out[t.Get(i, "login")] = t.Get(i, "user_id")
	}
	return out, nil
}
