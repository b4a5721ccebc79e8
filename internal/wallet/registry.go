package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidNonce indicates no unused challenge matches the supplied value.
	ErrInvalidNonce = errors.New("wallet: invalid nonce")
	// ErrExpiredNonce indicates the challenge exists but is past its expiry.
	ErrExpiredNonce = errors.New("wallet: expired nonce")

	errRegistryMissingDatabase = errors.New("wallet: registry database required")
	errRegistryMissingOwner    = errors.New("wallet: nonce owner required")
)

// RegistryConfig describes the dependencies of the nonce registry.
type RegistryConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Registry issues and consumes single-use wallet-binding challenges.
type Registry struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewRegistry constructs the nonce registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Database == nil {
		return nil, errRegistryMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: cfg.Database, now: clock, idProvider: idProvider, logger: logger}, nil
}

// Issue creates a fresh challenge for the owner. Expired and already-used
// rows belonging to the same owner are deleted first; cleanup rides the
// issue call instead of a background job.
func (r *Registry) Issue(ctx context.Context, ownerUserID string) (Challenge, error) {
	owner := strings.TrimSpace(ownerUserID)
	if owner == "" {
		return Challenge{}, errRegistryMissingOwner
	}

	now := r.now().UTC()
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Where("expires_at < ? OR used = ?", now, true).
		Delete(&Nonce{}).Error; err != nil {
		return Challenge{}, fmt.Errorf("wallet: nonce cleanup: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return Challenge{}, fmt.Errorf("wallet: nonce entropy: %w", err)
	}
	id, err := r.idProvider.NewID()
	if err != nil {
		return Challenge{}, fmt.Errorf("wallet: nonce id: %w", err)
	}

	row := Nonce{
		ID:        id,
		UserID:    owner,
		Nonce:     token,
		Message:   challengeMessage(token, now, owner),
		ExpiresAt: now.Add(nonceLifetime),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Challenge{}, fmt.Errorf("wallet: nonce insert: %w", err)
	}

	r.logger.Debug("issued wallet nonce", zap.String("user_id", owner))
	return Challenge{Nonce: row.Nonce, Message: row.Message, ExpiresAt: row.ExpiresAt}, nil
}

// Consume marks the matching unused, unexpired challenge as used inside the
// caller's transaction and returns the stored row. The guarded update is the
// exactly-once gate: of two concurrent consumers, only one sees a row flip
// from unused to used; the other gets ErrInvalidNonce.
func (r *Registry) Consume(tx *gorm.DB, ownerUserID, nonce string) (Nonce, error) {
	owner := strings.TrimSpace(ownerUserID)
	token := strings.TrimSpace(nonce)
	if owner == "" || token == "" {
		return Nonce{}, ErrInvalidNonce
	}

	now := r.now().UTC()

	var row Nonce
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND nonce = ?", owner, token).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Nonce{}, ErrInvalidNonce
	}
	if err != nil {
		return Nonce{}, fmt.Errorf("wallet: nonce select: %w", err)
	}
	if row.Used {
		return Nonce{}, ErrInvalidNonce
	}
	if !row.ExpiresAt.After(now) {
		return Nonce{}, ErrExpiredNonce
	}

	result := tx.Model(&Nonce{}).
		Where("id = ? AND used = ?", row.ID, false).
		Update("used", true)
	if result.Error != nil {
		return Nonce{}, fmt.Errorf("wallet: nonce consume: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return Nonce{}, ErrInvalidNonce
	}

	row.Used = true
	return row, nil
}

func randomToken() (string, error) {
	buf := make([]byte, nonceByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
