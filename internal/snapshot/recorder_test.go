package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	teams   []models.TeamWithRanks
	calls   int
	failAt  int
	readErr error
}

func (f *fakeSource) ListTeamsPage(_ context.Context, afterID string, limit int) ([]models.TeamWithRanks, error) {
	f.calls++
	if f.readErr != nil && f.calls == f.failAt {
		return nil, f.readErr
	}
	start := sort.Search(len(f.teams), func(i int) bool { return f.teams[i].TeamID > afterID })
	end := start + limit
	if end > len(f.teams) {
		end = len(f.teams)
	}
	return f.teams[start:end], nil
}

type snapshotKey struct {
	team string
	date time.Time
}

// ledger mimics the (team, date) upsert of the snapshot table
type ledger struct {
	rows      map[snapshotKey]models.RatingSnapshot
	writes    int
	failWrite map[int]bool
}

func newLedger() *ledger {
	return &ledger{rows: make(map[snapshotKey]models.RatingSnapshot), failWrite: make(map[int]bool)}
}

func (l *ledger) UpsertSnapshots(_ context.Context, rows []models.RatingSnapshot) error {
	l.writes++
	if l.failWrite[l.writes] {
		return errors.New("connection reset")
	}
	for _, r := range rows {
		l.rows[snapshotKey{team: r.TeamID, date: r.SnapshotDate}] = r
	}
	return nil
}

func population(n int) []models.TeamWithRanks {
	teams := make([]models.TeamWithRanks, 0, n)
	for i := 0; i < n; i++ {
		teams = append(teams, models.TeamWithRanks{
			TeamID:        fmt.Sprintf("team-%04d", i),
			Rating:        1500 + float64(i),
			MatchesPlayed: 1,
			NationalRank:  sql.NullInt32{Int32: int32(n - i), Valid: true},
		})
	}
	return teams
}

func TestCapture_WritesEligibleTeamsInPages(t *testing.T) {
	teams := population(10)
	teams[3].MatchesPlayed = 0
	teams[4].MatchesPlayed = 0
	teams[4].ExternalRank = sql.NullInt32{Int32: 77, Valid: true}

	source := &fakeSource{teams: teams}
	store := newLedger()
	recorder := NewRecorder(source, store, 4)

	asOf := time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)
	result, err := recorder.Capture(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Scanned)
	assert.Equal(t, 9, result.Report.Written, "team without matches or external rank is skipped")
	assert.Equal(t, 3, store.writes)
	assert.Equal(t, 3, source.calls)

	date := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	assert.NotContains(t, store.rows, snapshotKey{team: "team-0003", date: date})
	external := store.rows[snapshotKey{team: "team-0004", date: date}]
	assert.Equal(t, int32(77), external.ExternalRank.Int32)
}

func TestCapture_SameDayOverwrites(t *testing.T) {
	teams := population(3)
	source := &fakeSource{teams: teams}
	store := newLedger()
	recorder := NewRecorder(source, store, 100)

	morning := time.Date(2026, time.April, 2, 6, 0, 0, 0, time.UTC)
	_, err := recorder.Capture(context.Background(), morning)
	require.NoError(t, err)

	teams[0].Rating = 1600
	_, err = recorder.Capture(context.Background(), morning.Add(12*time.Hour))
	require.NoError(t, err)

	assert.Len(t, store.rows, 3, "one row per team and day")
	date := models.DateOnly(morning)
	assert.Equal(t, 1600.0, store.rows[snapshotKey{team: "team-0000", date: date}].Rating)

	_, err = recorder.Capture(context.Background(), morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, store.rows, 6, "a new day appends")
}

func TestCapture_FailedPageDoesNotStopLaterPages(t *testing.T) {
	source := &fakeSource{teams: population(9)}
	store := newLedger()
	store.failWrite[2] = true
	recorder := NewRecorder(source, store, 3)

	result, err := recorder.Capture(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	assert.Equal(t, 3, store.writes)
	assert.Equal(t, 6, result.Report.Written)
	assert.Equal(t, 1, result.Report.FailedPages)
	assert.Len(t, store.rows, 6)
}

func TestCapture_ReadFailureAborts(t *testing.T) {
	source := &fakeSource{teams: population(9), failAt: 2, readErr: errors.New("timeout")}
	store := newLedger()
	recorder := NewRecorder(source, store, 3)

	result, err := recorder.Capture(context.Background(), time.Now())
	assert.ErrorContains(t, err, "timeout")
	assert.Equal(t, 3, result.Report.Written)
}

func TestCapture_EmptyPopulation(t *testing.T) {
	recorder := NewRecorder(&fakeSource{}, newLedger(), 0)

	result, err := recorder.Capture(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Report.Written)
}

func TestCheckDate(t *testing.T) {
	now := time.Date(2026, time.May, 10, 1, 30, 0, 0, time.UTC)

	assert.NoError(t, CheckDate(now, now))
	assert.NoError(t, CheckDate(time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC), now), "Earlier on the same day is today")
	assert.NoError(t, CheckDate(now.AddDate(0, 0, 1), now))

	err := CheckDate(now.AddDate(0, 0, -1), now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPastDate))
	assert.Contains(t, err.Error(), "2026-05-09")

	// 20:00 in UTC-5 on May 9 is already May 10 UTC
	local := time.Date(2026, time.May, 9, 20, 0, 0, 0, time.FixedZone("CDT", -5*3600))
	assert.NoError(t, CheckDate(local, now))
}
