package recalc

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/cache"
	"github.com/MGMAppDev/soccerview-sub008/internal/models"
	"github.com/MGMAppDev/soccerview-sub008/internal/rating"
	"github.com/MGMAppDev/soccerview-sub008/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB is an in-memory stand-in for the Postgres repositories. Replaced
// ratings only become visible in committed after Commit.
type fakeDB struct {
	teams     map[string]models.Cohort
	matches   []models.Match
	standings []models.DivisionStanding

	committed map[string]models.TeamRating
	failPage  int
	beginErr  error
	loadErr   error
	commits   int
	rollbacks int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		teams:     make(map[string]models.Cohort),
		committed: make(map[string]models.TeamRating),
	}
}

func (f *fakeDB) ListIDs(context.Context) ([]string, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	ids := make([]string, 0, len(f.teams))
	for id := range f.teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeDB) ListCohorts(context.Context) (map[string]models.Cohort, error) {
	return f.teams, nil
}

func (f *fakeDB) ListForWindow(_ context.Context, start, end time.Time) ([]models.Match, error) {
	w := rating.Window{Start: start, End: end}
	var out []models.Match
	for _, m := range f.matches {
		if w.Contains(m.MatchDate) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDB) List(context.Context) ([]models.DivisionStanding, error) {
	return f.standings, nil
}

func (f *fakeDB) BeginReplace(context.Context) (RatingWriter, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeReplace{db: f, pending: make(map[string]models.TeamRating)}, nil
}

type fakeReplace struct {
	db      *fakeDB
	pending map[string]models.TeamRating
	pages   int
	done    bool
}

func (r *fakeReplace) WritePage(_ context.Context, page []models.TeamRating) error {
	r.pages++
	if r.pages == r.db.failPage {
		return errors.New("page rejected")
	}
	for _, row := range page {
		r.pending[row.TeamID] = row
	}
	return nil
}

func (r *fakeReplace) Commit(context.Context) error {
	r.db.committed = r.pending
	r.db.commits++
	r.done = true
	return nil
}

func (r *fakeReplace) Rollback(context.Context) error {
	if !r.done {
		r.db.rollbacks++
		r.done = true
	}
	return nil
}

func (f *fakeDB) stores() Stores {
	return Stores{Teams: f, Matches: f, Standings: f, Ratings: f}
}

type fakeCache struct {
	held        bool
	lockErr     error
	released    int
	invalidated []string
	status      map[string]interface{}
}

func (c *fakeCache) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if c.lockErr != nil {
		return "", c.lockErr
	}
	if c.held {
		return "", cache.ErrLockHeld
	}
	c.held = true
	return "token", nil
}

func (c *fakeCache) ReleaseLock(_ context.Context, _, token string) error {
	if token == "token" {
		c.held = false
		c.released++
	}
	return nil
}

func (c *fakeCache) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	c.invalidated = append(c.invalidated, prefix)
	return 0, nil
}

func (c *fakeCache) SetStatus(_ context.Context, job string, status interface{}) error {
	if c.status == nil {
		c.status = make(map[string]interface{})
	}
	c.status[job] = status
	return nil
}

func season() rating.Window {
	return rating.Window{
		Start: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
	}
}

func played(id int64, home, away string, hs, as int32, day time.Time) models.Match {
	return models.Match{
		ID:         id,
		HomeTeamID: sql.NullString{String: home, Valid: true},
		AwayTeamID: sql.NullString{String: away, Valid: true},
		HomeScore:  sql.NullInt32{Int32: hs, Valid: true},
		AwayScore:  sql.NullInt32{Int32: as, Valid: true},
		MatchDate:  day,
	}
}

func sampleDB() *fakeDB {
	db := newFakeDB()
	db.teams["a"] = models.Cohort{BirthYear: 2012, Gender: "M", State: "TX"}
	db.teams["b"] = models.Cohort{BirthYear: 2012, Gender: "M", State: "TX"}
	db.teams["c"] = models.Cohort{BirthYear: 2012, Gender: "M"}
	db.teams["idle"] = models.Cohort{BirthYear: 2012, Gender: "M", State: "TX"}

	day := time.Date(2025, time.September, 6, 15, 0, 0, 0, time.UTC)
	db.matches = []models.Match{
		played(1, "a", "b", 2, 0, day),
		played(2, "b", "c", 1, 1, day.AddDate(0, 0, 7)),
		played(3, "a", "c", 0, 3, day.AddDate(0, 0, 14)),
		played(4, "a", "b", 5, 0, day.AddDate(-1, 0, 0)),
		{ID: 5, HomeTeamID: sql.NullString{String: "a", Valid: true}, MatchDate: day},
	}
	return db
}

func TestRecalculate_WritesRatingsAndRanks(t *testing.T) {
	db := sampleDB()
	svc := NewService(db.stores(), nil, nil, Options{Window: season(), PageSize: 2})

	summary, err := svc.Recalculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 4, summary.Roster)
	assert.Equal(t, 3, summary.Rated)
	assert.Equal(t, 3, summary.Replay.Applied)
	assert.Equal(t, 0, summary.Replay.OutOfWindow, "Out-of-season matches are filtered by the match query")
	assert.Equal(t, 1, summary.Replay.SkippedMissingTeam)
	assert.Equal(t, 2, summary.Flush.Pages)
	assert.Equal(t, 3, summary.Flush.Written)
	assert.Equal(t, 3, summary.NationallyRanked)
	assert.Equal(t, 2, summary.RegionallyRanked)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, db.committed, 3)
	assert.NotContains(t, db.committed, "idle", "Zero-match teams are not written")

	var total float64
	for _, row := range db.committed {
		assert.Equal(t, row.MatchesPlayed, row.Wins+row.Losses+row.Draws)
		total += row.Rating
	}
	assert.InDelta(t, 3*models.DefaultRating, total, 1e-9, "Unseeded replay preserves total rating")

	assert.False(t, db.committed["c"].RegionalRank.Valid, "Team without state has no regional rank")
	assert.True(t, db.committed["c"].NationalRank.Valid)

	// Match 4 falls a year before the season and must not count
	assert.Equal(t, 2, db.committed["a"].MatchesPlayed)
	assert.Equal(t, 1, db.committed["a"].Wins)
	assert.Equal(t, 2, db.committed["b"].MatchesPlayed)
	assert.Equal(t, 0, db.committed["b"].Wins)
}

func TestRecalculate_Idempotent(t *testing.T) {
	db := sampleDB()
	svc := NewService(db.stores(), nil, nil, Options{Window: season()})

	_, err := svc.Recalculate(context.Background())
	require.NoError(t, err)
	first := db.committed

	_, err = svc.Recalculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, db.committed)
}

func TestRecalculate_MissingWindow(t *testing.T) {
	db := sampleDB()
	svc := NewService(db.stores(), nil, nil, Options{})

	summary, err := svc.Recalculate(context.Background())
	require.ErrorIs(t, err, rating.ErrSeasonWindowMissing)
	assert.Equal(t, "error", summary.Status)
	assert.Zero(t, db.commits)
}

func TestRecalculate_LoadFailureLeavesRatingsUntouched(t *testing.T) {
	db := sampleDB()
	db.committed["a"] = models.TeamRating{TeamID: "a", Rating: 1600}
	db.loadErr = errors.New("connection reset")

	svc := NewService(db.stores(), nil, nil, Options{Window: season()})

	_, err := svc.Recalculate(context.Background())
	require.Error(t, err)
	assert.Zero(t, db.commits)
	assert.Equal(t, 1600.0, db.committed["a"].Rating)
}

func TestRecalculate_PartialFlush(t *testing.T) {
	t.Run("commits successful pages by default", func(t *testing.T) {
		db := sampleDB()
		db.failPage = 1
		svc := NewService(db.stores(), nil, nil, Options{Window: season(), PageSize: 2})

		summary, err := svc.Recalculate(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, db.commits)
		assert.Equal(t, 1, summary.Flush.FailedPages)
		assert.Equal(t, 1, summary.Flush.Written)
		assert.Len(t, db.committed, 1)
	})

	t.Run("rolls back when completeness is required", func(t *testing.T) {
		db := sampleDB()
		db.committed["a"] = models.TeamRating{TeamID: "a", Rating: 1600}
		db.failPage = 2
		svc := NewService(db.stores(), nil, nil, Options{Window: season(), PageSize: 2, RequireComplete: true})

		_, err := svc.Recalculate(context.Background())
		require.Error(t, err)
		assert.Zero(t, db.commits)
		assert.Equal(t, 1, db.rollbacks)
		assert.Equal(t, 1600.0, db.committed["a"].Rating)
	})
}

func TestRecalculate_Lock(t *testing.T) {
	t.Run("skips when another run holds the lock", func(t *testing.T) {
		db := sampleDB()
		c := &fakeCache{held: true}
		svc := NewService(db.stores(), c, nil, Options{Window: season()})

		summary, err := svc.Recalculate(context.Background())
		require.ErrorIs(t, err, cache.ErrLockHeld)
		assert.Equal(t, "skipped", summary.Status)
		assert.Zero(t, db.commits)
		assert.Empty(t, c.status, "Skipped run must not overwrite status")
	})

	t.Run("publishes and releases on success", func(t *testing.T) {
		db := sampleDB()
		c := &fakeCache{}
		svc := NewService(db.stores(), c, nil, Options{Window: season()})

		summary, err := svc.Recalculate(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.Locked)
		assert.Equal(t, 1, c.released)
		assert.False(t, c.held)
		assert.Equal(t, []string{cache.LeaderboardPrefix}, c.invalidated)
		assert.Same(t, summary, c.status[JobRecalc])
	})

	t.Run("runs unlocked when the cache is unreachable", func(t *testing.T) {
		db := sampleDB()
		c := &fakeCache{lockErr: errors.New("dial tcp: connection refused")}
		svc := NewService(db.stores(), c, nil, Options{Window: season()})

		summary, err := svc.Recalculate(context.Background())
		require.NoError(t, err)
		assert.False(t, summary.Locked)
		assert.Equal(t, 1, db.commits)
	})
}

type memLedger struct {
	teams []models.TeamWithRanks
	rows  map[string]models.RatingSnapshot
}

func (m *memLedger) ListTeamsPage(_ context.Context, afterID string, limit int) ([]models.TeamWithRanks, error) {
	var out []models.TeamWithRanks
	for _, t := range m.teams {
		if t.TeamID > afterID && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memLedger) UpsertSnapshots(_ context.Context, rows []models.RatingSnapshot) error {
	for _, r := range rows {
		m.rows[r.TeamID+"/"+r.SnapshotDate.Format(time.DateOnly)] = r
	}
	return nil
}

func TestCaptureSnapshot(t *testing.T) {
	ledger := &memLedger{
		teams: []models.TeamWithRanks{
			{TeamID: "a", Rating: 1516, MatchesPlayed: 1},
			{TeamID: "b", Rating: 1500},
		},
		rows: make(map[string]models.RatingSnapshot),
	}
	c := &fakeCache{}
	svc := NewService(newFakeDB().stores(), c, snapshot.NewRecorder(ledger, ledger, 10), Options{Window: season()})

	result, err := svc.CaptureSnapshot(context.Background(), time.Date(2025, time.October, 1, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.Written)
	assert.Contains(t, ledger.rows, "a/2025-10-01")
	assert.Same(t, result, c.status[JobSnapshot])
}

func TestCaptureSnapshot_NoRecorder(t *testing.T) {
	svc := NewService(newFakeDB().stores(), nil, nil, Options{Window: season()})

	_, err := svc.CaptureSnapshot(context.Background(), time.Now())
	assert.Error(t, err)
}
