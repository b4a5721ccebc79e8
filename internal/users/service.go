package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrUnknownRole indicates a role value outside the closed enum.
	ErrUnknownRole = errors.New("users: unknown role")
	// ErrStaleTokenGeneration indicates a refresh token from a superseded rotation.
	ErrStaleTokenGeneration = errors.New("users: stale token generation")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingUserID   = errors.New("users: user identifier required")
)

// ServiceConfig describes the dependencies required for account lookups.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service exposes account reads plus the refresh-rotation generation counter.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// GetByID loads a single account row.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return User{}, errMissingUserID
	}
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", trimmed).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load by id: %w", err)
	}
	return user, nil
}

// GetByUnionID resolves the local account bound to an external union identifier.
func (s *Service) GetByUnionID(ctx context.Context, unionID string) (User, error) {
	trimmed := strings.TrimSpace(unionID)
	if trimmed == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("union_id = ?", trimmed).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load by union id: %w", err)
	}
	return user, nil
}

// RotateTokenGeneration advances the per-user refresh generation counter.
// The presented generation must match the stored one; a mismatch means the
// refresh token was already superseded by a later rotation. The compare and
// the bump commit in one transaction so two concurrent refresh calls cannot
// both succeed with the same token.
func (s *Service) RotateTokenGeneration(ctx context.Context, userID string, presentedGeneration int64) (User, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return User{}, errMissingUserID
	}

	var rotated User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", trimmed).
			Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("users: lock user row: %w", err)
		}
		if user.TokenGeneration != presentedGeneration {
			s.logger.Info("rejected stale refresh generation",
				zap.String("user_id", trimmed),
				zap.Int64("presented", presentedGeneration),
				zap.Int64("current", user.TokenGeneration))
			return ErrStaleTokenGeneration
		}

		user.TokenGeneration++
		if err := tx.Model(&User{}).
			Where("id = ?", trimmed).
			Update("token_generation", user.TokenGeneration).Error; err != nil {
			return fmt.Errorf("users: bump token generation: %w", err)
		}
		rotated = user
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}
	return rotated, nil
}
