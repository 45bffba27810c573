package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/api"
	"presence-tracker-backend/internal/db"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/presence"
	"presence-tracker-backend/internal/scanner"
	"presence-tracker-backend/internal/store"
)

// TestPresenceLifecycle drives tag reads through a reader pipe, the scanner
// loop, the presence engine and the sweeper, and checks the database and the
// HTTP API at each step.
func TestPresenceLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	testDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "lifecycle.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Scanner.Enabled = true
	cfg.Scanner.HexUIDs = true
	cfg.Scanner.Interval = 10 * time.Millisecond
	cfg.Scanner.ErrorBackoff = 50 * time.Millisecond
	cfg.Presence.Debounce = 200 * time.Millisecond
	cfg.Presence.MaxCredit = time.Minute

	appStore := store.NewGormStore(testDB)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := appStore.EnsureMembers(ctx, []model.Member{{ID: "880441a51b", Name: "Sam Allen"}})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	engine := presence.NewEngine(&cfg.Presence, appStore)
	require.NoError(t, engine.LoadMode(ctx))

	pr, pw := io.Pipe()
	defer pw.Close()
	reader := scanner.NewLineReader(pr)
	scannerSvc := scanner.NewService(&cfg.Scanner, reader, engine)
	go scannerSvc.Run(ctx)

	sweeperCfg := cfg.Presence
	sweeperCfg.AutoCheckout = time.Second
	sweeperCfg.SweepInterval = 50 * time.Millisecond
	sweeper := presence.NewSweeper(&sweeperCfg, appStore)

	router := api.NewRouter(&cfg.Server, api.NewHandler(appStore, engine, scannerSvc, sweeper, nil))

	status := func() model.PresenceStatus {
		p, err := appStore.GetPresence(ctx, "880441a51b")
		require.NoError(t, err)
		return p.Status
	}
	eventCount := func() int {
		events, err := appStore.ListScanEvents(ctx, "880441a51b", 100)
		require.NoError(t, err)
		return len(events)
	}
	tap := func(lines string) {
		_, err := io.WriteString(pw, lines)
		require.NoError(t, err)
	}

	// --- Step 1: a double read checks the member in once ---
	t.Run("Step 1: Check In", func(t *testing.T) {
		tap("584186963227\n584186963227\n")

		assert.Eventually(t, func() bool { return status() == model.StatusIn }, 2*time.Second, 10*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, eventCount(), "the repeated read inside the debounce window must be ignored")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/present", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
	})

	// --- Step 2: an unknown tag changes nothing ---
	t.Run("Step 2: Unknown Tag", func(t *testing.T) {
		tap("deadbeef\n")

		assert.Eventually(t, func() bool {
			last, ok := engine.LastScan()
			return ok && last.Outcome == presence.OutcomeUnknown
		}, 2*time.Second, 10*time.Millisecond)

		members, err := appStore.ListMembers(ctx)
		require.NoError(t, err)
		assert.Len(t, members, 1)
		assert.Equal(t, model.StatusIn, status())
	})

	// --- Step 3: check out after the debounce window and earn time ---
	t.Run("Step 3: Check Out", func(t *testing.T) {
		time.Sleep(1200 * time.Millisecond)
		tap("584186963227\n")

		assert.Eventually(t, func() bool { return status() == model.StatusOut }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 2, eventCount())

		member, err := appStore.GetMember(ctx, "880441a51b")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, member.TotalSeconds, int64(1))
		assert.LessOrEqual(t, member.TotalSeconds, int64(3))
	})

	// --- Step 4: a forgotten check-in is swept with no credit ---
	t.Run("Step 4: Auto Checkout", func(t *testing.T) {
		before, err := appStore.GetMember(ctx, "880441a51b")
		require.NoError(t, err)

		time.Sleep(250 * time.Millisecond)
		tap("584186963227\n")
		assert.Eventually(t, func() bool { return status() == model.StatusIn }, 2*time.Second, 10*time.Millisecond)

		sweeper.Start(ctx)
		defer sweeper.Stop()

		assert.Eventually(t, func() bool { return status() == model.StatusOut }, 3*time.Second, 20*time.Millisecond)

		after, err := appStore.GetMember(ctx, "880441a51b")
		require.NoError(t, err)
		assert.Equal(t, before.TotalSeconds, after.TotalSeconds, "auto-checkout must not credit time")

		events, err := appStore.ListScanEvents(ctx, "880441a51b", 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.ActionAutoOut, events[0].Action)
		assert.True(t, events[0].Forced)
	})

	// --- Step 5: the leaderboard reflects the credited time ---
	t.Run("Step 5: Leaderboard", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var board store.Leaderboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
		require.Len(t, board.Top, 1)
		assert.Equal(t, "Sam Allen", board.Top[0].Name)
		assert.Equal(t, int64(1), board.MemberCount)
	})
}
