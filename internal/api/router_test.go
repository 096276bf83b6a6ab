package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/cache"
	"github.com/MGMAppDev/soccerview-sub008/internal/models"
	"github.com/MGMAppDev/soccerview-sub008/internal/recalc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teamID = "7f8c2a52-1c7e-4a8e-9d54-2b8f0c1e9a10"

type fakeStore struct {
	queries   []models.LeaderboardQuery
	entries   []models.LeaderboardEntry
	history   []models.RatingSnapshot
	err       error
	healthErr error
}

func (f *fakeStore) Leaderboard(_ context.Context, q models.LeaderboardQuery) ([]models.LeaderboardEntry, error) {
	f.queries = append(f.queries, q)
	return f.entries, f.err
}

func (f *fakeStore) History(_ context.Context, _ string, limit int) ([]models.RatingSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeStore) Health(context.Context) error {
	return f.healthErr
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	b, ok := m.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memCache) GetStatus(ctx context.Context, job string, dest interface{}) error {
	return m.GetJSON(ctx, "status:"+job, dest)
}

func newServer(store *fakeStore, c Cache) http.Handler {
	return Router(Deps{Rankings: store, History: store, Health: store, Cache: c, CacheTTL: time.Hour})
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	store := &fakeStore{}
	rec, body := get(t, newServer(store, nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	store.healthErr = errors.New("connection refused")
	rec, _ = get(t, newServer(store, nil), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	rec, _ := get(t, newServer(&fakeStore{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRankings_National(t *testing.T) {
	store := &fakeStore{entries: []models.LeaderboardEntry{
		{Rank: 1, TeamID: "a", Rating: 1540},
		{Rank: 2, TeamID: "b", Rating: 1520},
	}}

	rec, body := get(t, newServer(store, nil), "/rankings/national?birth_year=2012&gender=M&limit=25")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "national", body["scope"])
	assert.Len(t, body["rows"], 2)
	require.Len(t, store.queries, 1)
	assert.Equal(t, models.LeaderboardQuery{BirthYear: 2012, Gender: "M", Limit: 25}, store.queries[0])
}

func TestRankings_Regional(t *testing.T) {
	store := &fakeStore{}

	rec, body := get(t, newServer(store, nil), "/rankings/regional?birth_year=2012&gender=F&state=tx")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "regional", body["scope"])
	assert.Equal(t, "TX", body["state"])
	assert.Empty(t, body["rows"])
	assert.Equal(t, models.DefaultLeaderboardLimit, store.queries[0].Limit)
}

func TestRankings_BadRequest(t *testing.T) {
	cases := []string{
		"/rankings/national?gender=M",
		"/rankings/national?birth_year=abc&gender=M",
		"/rankings/national?birth_year=2012",
		"/rankings/national?birth_year=2012&gender=M&limit=-1",
		"/rankings/regional?birth_year=2012&gender=M",
	}

	for _, target := range cases {
		t.Run(target, func(t *testing.T) {
			store := &fakeStore{}
			rec, body := get(t, newServer(store, nil), target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, store.queries)
		})
	}
}

func TestRankings_ServedFromCache(t *testing.T) {
	store := &fakeStore{entries: []models.LeaderboardEntry{{Rank: 1, TeamID: "a", Rating: 1540}}}
	c := newMemCache()
	h := newServer(store, c)

	_, first := get(t, h, "/rankings/national?birth_year=2012&gender=M")
	_, second := get(t, h, "/rankings/national?birth_year=2012&gender=M")

	assert.Len(t, store.queries, 1, "Second request should hit the cache")
	assert.Equal(t, false, first["cached"])
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["rows"], second["rows"])
}

func TestRankings_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("timeout")}
	rec, _ := get(t, newServer(store, nil), "/rankings/national?birth_year=2012&gender=M")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistory(t *testing.T) {
	store := &fakeStore{history: []models.RatingSnapshot{
		{TeamID: teamID, SnapshotDate: time.Date(2025, time.October, 2, 0, 0, 0, 0, time.UTC), Rating: 1525,
			NationalRank: sql.NullInt32{Int32: 3, Valid: true}},
		{TeamID: teamID, SnapshotDate: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), Rating: 1510},
	}}

	rec, body := get(t, newServer(store, nil), "/teams/"+teamID+"/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	rows := body["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "2025-10-02", first["date"])
	assert.Equal(t, float64(3), first["national_rank"])
	assert.Nil(t, first["regional_rank"])
}

func TestHistory_BadRequest(t *testing.T) {
	h := newServer(&fakeStore{}, nil)

	rec, _ := get(t, h, "/teams/not-a-uuid/history")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, h, "/teams/"+teamID+"/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	rec, _ := get(t, newServer(&fakeStore{}, nil), "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c := newMemCache()
	require.NoError(t, c.SetJSON(context.Background(), "status:"+recalc.JobRecalc, recalc.Summary{RunID: "run-1", Status: "success"}, 0))

	rec, body := get(t, newServer(&fakeStore{}, c), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	run := body[recalc.JobRecalc].(map[string]any)
	assert.Equal(t, "run-1", run["run_id"])
	assert.Nil(t, body[recalc.JobSnapshot])
}
