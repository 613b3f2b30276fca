// Package store provides gorm-backed persistence for run records and API
// resources, on sqlite or postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for run records and API resources.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Run records. Observational fields are append-only; only the
	// correction overlay is updated after creation.
	CreateRun(ctx context.Context, run *monitor.Run) error
	GetRunByID(ctx context.Context, id uint) (*monitor.Run, error)
	ListRuns(ctx context.Context, limit int) ([]monitor.Run, error)
	ListRunsBetween(
		ctx context.Context, from, to time.Time,
	) ([]monitor.Run, error)
	CountRuns(ctx context.Context) (int64, error)
	ApplyCorrection(
		ctx context.Context, runID uint, comment string,
	) (*monitor.Run, error)

	// User CRUD.
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uint) error

	// Session CRUD.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSessionLastActive(ctx context.Context, id uint, t time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionByID(ctx context.Context, id uint) error
	DeleteExpiredSessions(ctx context.Context) error

	// API key CRUD.
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID uint) ([]APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uint, t time.Time) error
	DeleteAPIKey(ctx context.Context, id uint) error

	// Seeding from config.
	SeedUsers(ctx context.Context, users []config.BasicAuthUser) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB

	corrections *correctionGuard
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log:         log.WithField("component", "store"),
		cfg:         cfg,
		corrections: newCorrectionGuard(),
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&monitor.Run{},
		&User{},
		&Session{},
		&APIKey{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Run records ---

func (s *store) CreateRun(ctx context.Context, run *monitor.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if run.CorrectionStatus == "" {
		run.CorrectionStatus = monitor.CorrectionPending
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating run: %w", wrapPersistence(err))
	}

	return nil
}

func (s *store) GetRunByID(
	ctx context.Context, id uint,
) (*monitor.Run, error) {
	var run monitor.Run
	if err := s.db.WithContext(ctx).
		First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("getting run by id: %w", wrapPersistence(err))
	}

	return &run, nil
}

// ListRuns returns runs newest-first, the order every aggregate view
// expects. A limit of 0 means no limit.
func (s *store) ListRuns(
	ctx context.Context, limit int,
) ([]monitor.Run, error) {
	q := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []monitor.Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", wrapPersistence(err))
	}

	return runs, nil
}

// ListRunsBetween returns runs with from <= created_at < to, newest-first.
func (s *store) ListRunsBetween(
	ctx context.Context, from, to time.Time,
) ([]monitor.Run, error) {
	var runs []monitor.Run
	if err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at DESC, id DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf(
			"listing runs between: %w", wrapPersistence(err),
		)
	}

	return runs, nil
}

func (s *store) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&monitor.Run{}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting runs: %w", wrapPersistence(err))
	}

	return count, nil
}

// ApplyCorrection marks a failed run as corrected. Applies are serialized
// per run ID: a second call while one is in flight is rejected with
// ErrCorrectionInFlight rather than silently double-applied. Sequential
// re-applies are idempotent, with the last comment winning.
func (s *store) ApplyCorrection(
	ctx context.Context, runID uint, comment string,
) (*monitor.Run, error) {
	if err := monitor.ValidateCorrectionComment(comment); err != nil {
		return nil, err
	}

	if !s.corrections.acquire(runID) {
		return nil, ErrCorrectionInFlight
	}
	defer s.corrections.release(runID)

	run, err := s.GetRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != monitor.StatusError {
		return nil, ErrNotCorrectable
	}

	if err := s.db.WithContext(ctx).
		Model(&monitor.Run{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"correction_status":  monitor.CorrectionCorrected,
			"correction_comment": comment,
		}).Error; err != nil {
		return nil, fmt.Errorf(
			"applying correction: %w", wrapPersistence(err),
		)
	}

	run.CorrectionStatus = monitor.CorrectionCorrected
	run.CorrectionComment = comment

	return run, nil
}

// --- User CRUD ---

func (s *store) GetUserByID(
	ctx context.Context, id uint,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}

	return &user, nil
}

func (s *store) GetUserByUsername(
	ctx context.Context, username string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}

	return &user, nil
}

func (s *store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

func (s *store) UpdateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	return nil
}

func (s *store) DeleteUser(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&User{}, id).Error; err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	return nil
}

// --- Session CRUD ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("getting session by token: %w", err)
	}

	return &session, nil
}

func (s *store) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return sessions, nil
}

func (s *store) UpdateSessionLastActive(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_active_at", t).Error; err != nil {
		return fmt.Errorf("updating session last active: %w", err)
	}

	return nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteSessionByID(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Session{}, id).Error; err != nil {
		return fmt.Errorf("deleting session by id: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}

// --- API key CRUD ---

func (s *store) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}

	return nil
}

func (s *store) GetAPIKeyByHash(
	ctx context.Context, hash string,
) (*APIKey, error) {
	var key APIKey
	if err := s.db.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error; err != nil {
		return nil, fmt.Errorf("getting api key by hash: %w", err)
	}

	return &key, nil
}

func (s *store) ListAPIKeysByUser(
	ctx context.Context, userID uint,
) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing api keys by user: %w", err)
	}

	return keys, nil
}

func (s *store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	return keys, nil
}

func (s *store) UpdateAPIKeyLastUsed(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", t).Error; err != nil {
		return fmt.Errorf("updating api key last used: %w", err)
	}

	return nil
}

func (s *store) DeleteAPIKey(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&APIKey{}, id).Error; err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}

	return nil
}

// --- Seeding ---

// SeedUsers upserts config-sourced users. Only users with source="config"
// are updated; users created by admins are preserved.
func (s *store) SeedUsers(
	ctx context.Context, users []config.BasicAuthUser,
) error {
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(u.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", u.Username, err)
		}

		role := u.Role
		if role == "" {
			role = RoleOperator
		}

		var existing User

		result := s.db.WithContext(ctx).
			Where("username = ? AND source = ?", u.Username, SourceConfig).
			First(&existing)

		if result.Error == nil {
			existing.PasswordHash = string(hash)
			existing.Role = role

			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("updating config user %q: %w", u.Username, err)
			}
		} else {
			newUser := User{
				Username:     u.Username,
				PasswordHash: string(hash),
				Role:         role,
				Source:       SourceConfig,
			}

			if err := s.db.WithContext(ctx).
				Where("username = ?", u.Username).
				FirstOrCreate(&newUser).Error; err != nil {
				return fmt.Errorf("seeding config user %q: %w", u.Username, err)
			}
		}
	}

	s.log.WithField("count", len(users)).
		Info("Seeded users from config")

	return nil
}
