package store

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.Logger{Writer: &log.IOWriter{Writer: io.Discard}}
}

// newTestStore opens a per-test in-memory database. Shared cache lets a
// second store attach to the same database by name; a single connection
// keeps SQLite from returning busy errors under concurrent writes.
func newTestStore(t *testing.T, profile string) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	s, err := Open(dsn, profile, true, testLogger())
	require.NoError(t, err)
	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(v string) *string   { return &v }
func intPtr(v int) *int         { return &v }
func boolPtr(v bool) *bool      { return &v }
func f64Ptr(v float64) *float64 { return &v }

func TestTryAcquireExclusive(t *testing.T) {
	s := newTestStore(t, "profile_a")

	assert.True(t, s.TryAcquire("scan_001.png"))
	assert.False(t, s.TryAcquire("scan_001.png"))
	assert.True(t, s.TryAcquire("scan_002.png"))
}

func TestTryAcquireConcurrent(t *testing.T) {
	s := newTestStore(t, "profile_a")

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- s.TryAcquire("contested.png")
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestSweepExpiredFreesStaleClaims(t *testing.T) {
	s := newTestStore(t, "profile_a")

	// A crashed worker left this claim behind.
	require.NoError(t, s.db.Create(&Lease{
		FileName:      "stuck.png",
		WorkerProfile: "profile_dead",
		LockedAt:      time.Now().Add(-5 * time.Minute),
	}).Error)

	assert.False(t, s.TryAcquire("stuck.png"))
	s.SweepExpired()
	assert.True(t, s.TryAcquire("stuck.png"))
}

func TestSweepKeepsFreshClaims(t *testing.T) {
	s := newTestStore(t, "profile_a")

	require.True(t, s.TryAcquire("live.png"))
	s.SweepExpired()
	assert.False(t, s.TryAcquire("live.png"))
}

func TestReleaseAllMine(t *testing.T) {
	s := newTestStore(t, "profile_a")
	require.True(t, s.TryAcquire("a.png"))
	require.True(t, s.TryAcquire("b.png"))

	// Another profile's claim must survive the bulk release.
	require.NoError(t, s.db.Create(&Lease{
		FileName:      "c.png",
		WorkerProfile: "profile_b",
		LockedAt:      time.Now(),
	}).Error)

	s.ReleaseAllMine()

	assert.True(t, s.TryAcquire("a.png"))
	assert.True(t, s.TryAcquire("b.png"))
	assert.False(t, s.TryAcquire("c.png"))
}

func TestSaveResultMerge(t *testing.T) {
	s := newTestStore(t, "profile_a")

	s.SaveResult(Result{
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		RawText:    strPtr("first pass text"),
	})

	// A later save without text must not erase it, but may fill gaps.
	s.SaveResult(Result{
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		ModelLabel: strPtr("2.0 Pro"),
	})

	var r Result
	require.NoError(t, s.db.First(&r, "file_name = ? AND source_path = ?", "scan.png", "/data/batch1").Error)
	require.NotNil(t, r.RawText)
	assert.Equal(t, "first pass text", *r.RawText)
	require.NotNil(t, r.ModelLabel)
	assert.Equal(t, "2.0 Pro", *r.ModelLabel)
}

func TestSaveResultKeepsOriginalCreatedAt(t *testing.T) {
	s := newTestStore(t, "profile_a")

	first := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s.SaveResult(Result{
		CreatedAt:  first,
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		RawText:    strPtr("text"),
	})
	s.SaveResult(Result{
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		DurationS:  f64Ptr(12.5),
	})

	var r Result
	require.NoError(t, s.db.First(&r, "file_name = ?", "scan.png").Error)
	assert.Equal(t, first.Unix(), r.CreatedAt.Unix())

	var count int64
	require.NoError(t, s.db.Model(&Result{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDoneFilesAndResume(t *testing.T) {
	s := newTestStore(t, "profile_a")

	for _, name := range []string{"scan_001.png", "scan_003.png", "scan_002.png"} {
		s.SaveResult(Result{FileName: name, SourcePath: "/data/batch1", RawText: strPtr("x")})
	}
	s.SaveResult(Result{FileName: "other.png", SourcePath: "/data/batch2", RawText: strPtr("x")})

	done := s.DoneFiles("/data/batch1")
	assert.Len(t, done, 3)
	assert.Contains(t, done, "scan_002.png")
	assert.NotContains(t, done, "other.png")

	assert.True(t, s.IsDone("/data/batch1", "scan_001.png"))
	assert.False(t, s.IsDone("/data/batch1", "scan_999.png"))

	last, ok := s.LastProcessed("/data/batch1")
	require.True(t, ok)
	assert.Equal(t, "scan_003.png", last)

	_, ok = s.LastProcessed("/data/empty")
	assert.False(t, ok)
}

func TestDisabledStoreIsInert(t *testing.T) {
	s, err := Open("", "profile_a", false, testLogger())
	require.NoError(t, err)

	assert.False(t, s.Enabled())
	assert.False(t, s.TryAcquire("anything.png"))
	s.SweepExpired()
	s.Release("anything.png")
	s.ReleaseAllMine()
	s.SaveResult(Result{FileName: "a", SourcePath: "b"})
	assert.Empty(t, s.DoneFiles("/data"))
	assert.False(t, s.IsDone("/data", "a"))
	_, ok := s.LastProcessed("/data")
	assert.False(t, ok)
	assert.False(t, s.IsProfilePaused("profile_a"))
	assert.Nil(t, s.CriticalEvents("", true))
	require.NoError(t, s.Close())
}

func TestProfileStateSparseUpsert(t *testing.T) {
	s := newTestStore(t, "profile_a")

	s.SetProfileState("profile_a", StateUpdate{
		IsPaused:    boolPtr(true),
		PauseReason: strPtr("captcha_detected"),
	})
	s.SetProfileState("profile_a", StateUpdate{
		CurrentAction: strPtr("idle"),
	})

	st, ok := s.GetProfileState("profile_a")
	require.True(t, ok)
	assert.True(t, st.IsPaused)
	require.NotNil(t, st.PauseReason)
	assert.Equal(t, "captcha_detected", *st.PauseReason)
	require.NotNil(t, st.CurrentAction)
	assert.Equal(t, "idle", *st.CurrentAction)
}

func TestIsProfilePausedHonorsDeadline(t *testing.T) {
	s := newTestStore(t, "profile_a")

	past := time.Now().Add(-time.Hour)
	s.SetProfileState("profile_a", StateUpdate{
		IsPaused:   boolPtr(true),
		PauseUntil: &past,
	})
	assert.False(t, s.IsProfilePaused("profile_a"))

	future := time.Now().Add(time.Hour)
	s.SetProfileState("profile_a", StateUpdate{
		IsPaused:   boolPtr(true),
		PauseUntil: &future,
	})
	assert.True(t, s.IsProfilePaused("profile_a"))

	s.SetProfileState("profile_a", StateUpdate{IsPaused: boolPtr(false)})
	assert.False(t, s.IsProfilePaused("profile_a"))
}

func TestCriticalEventLifecycle(t *testing.T) {
	s := newTestStore(t, "profile_a")

	s.LogCriticalEvent("profile_a", "session_expired", "login wall hit", true, map[string]any{
		"url": "https://accounts.google.com/signin",
	})
	s.LogCriticalEvent("profile_b", "captcha", "robot check", true, nil)

	all := s.CriticalEvents("", true)
	require.Len(t, all, 2)

	mine := s.CriticalEvents("profile_a", true)
	require.Len(t, mine, 1)
	assert.Equal(t, "session_expired", mine[0].EventType)

	s.ResolveCriticalEvent(mine[0].ID)
	assert.Empty(t, s.CriticalEvents("profile_a", true))
	assert.Len(t, s.CriticalEvents("profile_a", false), 1)

	// Resolving twice is harmless.
	s.ResolveCriticalEvent(mine[0].ID)
}

func TestSaveTokenUsageAndTrace(t *testing.T) {
	s := newTestStore(t, "profile_a")

	s.SaveTokenUsage(TokenUsage{
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		Profile:    strPtr("profile_a"),
		TokIn:      intPtr(1200),
		TokOut:     intPtr(800),
		TokTotal:   intPtr(2000),
	})
	var usage int64
	require.NoError(t, s.db.Model(&TokenUsage{}).Count(&usage).Error)
	assert.EqualValues(t, 1, usage)

	s.SaveErrorTrace(ErrorTrace{
		BatchID:    "batch1",
		FileName:   "scan.png",
		SourcePath: "/data/batch1",
		Profile:    "profile_a",
		ErrorType:  "response_timeout",
		TracePath:  "/traces/scan.zip",
	})
	var traces int64
	require.NoError(t, s.db.Model(&ErrorTrace{}).Count(&traces).Error)
	assert.EqualValues(t, 1, traces)
}

func TestSaveArtifact(t *testing.T) {
	s := newTestStore(t, "profile_a")

	s.SaveArtifact(strPtr("batch1"), strPtr("scan.png"), "screenshot", []byte{0x89, 0x50}, map[string]any{
		"width": 1400,
	})
	s.SaveArtifact(nil, nil, "screenshot", nil, nil)

	var count int64
	require.NoError(t, s.db.Model(&Artifact{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
