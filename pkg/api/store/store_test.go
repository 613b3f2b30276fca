package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := NewStore(log, &config.APIDatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "test.db"),
		},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
	})

	return s
}

func seedRun(t *testing.T, s Store, run monitor.Run) *monitor.Run {
	t.Helper()

	require.NoError(t, s.CreateRun(context.Background(), &run))

	return &run
}

func TestStore_CreateRunDefaults(t *testing.T) {
	s := newTestStore(t)

	run := seedRun(t, s, monitor.Run{
		System:     "Consulta Prueba",
		Status:     monitor.StatusOK,
		DurationMS: 1500,
	})

	require.NotZero(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Equal(t, monitor.CorrectionPending, run.CorrectionStatus)

	got, err := s.GetRunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Consulta Prueba", got.System)
	assert.Equal(t, int64(1500), got.DurationMS)
}

func TestStore_GetRunByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRunByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedRun(t, s, monitor.Run{
			System:    "Flujo A",
			Status:    monitor.StatusOK,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	runs, err := s.ListRuns(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))
	assert.True(t, runs[1].CreatedAt.After(runs[2].CreatedAt))

	all, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ListRunsBetween(t *testing.T) {
	s := newTestStore(t)

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	seedRun(t, s, monitor.Run{
		System: "before", Status: monitor.StatusOK,
		CreatedAt: day.Add(-time.Hour),
	})
	seedRun(t, s, monitor.Run{
		System: "inside", Status: monitor.StatusOK,
		CreatedAt: day.Add(12 * time.Hour),
	})
	seedRun(t, s, monitor.Run{
		System: "boundary", Status: monitor.StatusOK,
		CreatedAt: day.Add(24 * time.Hour),
	})

	runs, err := s.ListRunsBetween(
		context.Background(), day, day.Add(24*time.Hour),
	)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "inside", runs[0].System)

	count, err := s.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStore_ApplyCorrection(t *testing.T) {
	s := newTestStore(t)

	failed := seedRun(t, s, monitor.Run{
		System: "Flujo A",
		Status: monitor.StatusError,
	})

	corrected, err := s.ApplyCorrection(
		context.Background(), failed.ID, "reinicio del servicio upstream",
	)
	require.NoError(t, err)
	assert.Equal(t, monitor.CorrectionCorrected, corrected.CorrectionStatus)
	assert.Equal(t, monitor.StatusOK, corrected.DisplayStatus())

	got, err := s.GetRunByID(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.CorrectionCorrected, got.CorrectionStatus)
	assert.Equal(
		t, "reinicio del servicio upstream", got.CorrectionComment,
	)
}

func TestStore_ApplyCorrection_Idempotent(t *testing.T) {
	s := newTestStore(t)

	failed := seedRun(t, s, monitor.Run{
		System: "Flujo A",
		Status: monitor.StatusError,
	})

	_, err := s.ApplyCorrection(
		context.Background(), failed.ID, "primer intento",
	)
	require.NoError(t, err)

	// Re-applying is allowed; the last comment wins.
	got, err := s.ApplyCorrection(
		context.Background(), failed.ID, "comentario actualizado",
	)
	require.NoError(t, err)
	assert.Equal(t, monitor.CorrectionCorrected, got.CorrectionStatus)
	assert.Equal(t, "comentario actualizado", got.CorrectionComment)
}

func TestStore_ApplyCorrection_Rejections(t *testing.T) {
	s := newTestStore(t)

	okRun := seedRun(t, s, monitor.Run{
		System: "Flujo A",
		Status: monitor.StatusOK,
	})
	failed := seedRun(t, s, monitor.Run{
		System: "Flujo B",
		Status: monitor.StatusError,
	})

	tests := []struct {
		name    string
		runID   uint
		comment string
		wantErr error
	}{
		{
			name:    "comment too short",
			runID:   failed.ID,
			comment: "ok",
			wantErr: monitor.ErrCommentTooShort,
		},
		{
			name:    "whitespace padded comment",
			runID:   failed.ID,
			comment: "  ab  ",
			wantErr: monitor.ErrCommentTooShort,
		},
		{
			name:    "unknown run",
			runID:   999,
			comment: "comentario valido",
			wantErr: ErrRunNotFound,
		},
		{
			name:    "run not in error",
			runID:   okRun.ID,
			comment: "comentario valido",
			wantErr: ErrNotCorrectable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ApplyCorrection(
				context.Background(), tt.runID, tt.comment,
			)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCorrectionGuard(t *testing.T) {
	g := newCorrectionGuard()

	require.True(t, g.acquire(1))
	assert.False(t, g.acquire(1))
	assert.True(t, g.acquire(2))

	g.release(1)
	assert.True(t, g.acquire(1))
}

func TestStore_SeedUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedUsers(ctx, []config.BasicAuthUser{
		{Username: "operador", Password: "secreto", Role: RoleAdmin},
		{Username: "runner", Password: "clave-ci"},
	}))

	admin, err := s.GetUserByUsername(ctx, "operador")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.Equal(t, SourceConfig, admin.Source)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(admin.PasswordHash), []byte("secreto"),
	))

	runner, err := s.GetUserByUsername(ctx, "runner")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, runner.Role)

	// Re-seeding with a new password rotates the hash in place.
	require.NoError(t, s.SeedUsers(ctx, []config.BasicAuthUser{
		{Username: "operador", Password: "rotado", Role: RoleAdmin},
	}))

	rotated, err := s.GetUserByUsername(ctx, "operador")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, rotated.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(rotated.PasswordHash), []byte("rotado"),
	))
}

func TestStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{
		Username:     "operador",
		PasswordHash: "x",
		Role:         RoleOperator,
		Source:       SourceConfig,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	live := &Session{
		Token:     "token-live",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	expired := &Session{
		Token:     "token-expired",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, live))
	require.NoError(t, s.CreateSession(ctx, expired))

	require.NoError(t, s.DeleteExpiredSessions(ctx))

	_, err := s.GetSessionByToken(ctx, "token-expired")
	assert.Error(t, err)

	got, err := s.GetSessionByToken(ctx, "token-live")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	require.NoError(t, s.DeleteSession(ctx, "token-live"))

	_, err = s.GetSessionByToken(ctx, "token-live")
	assert.Error(t, err)
}
