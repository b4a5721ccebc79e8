package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimsum-app/backend/internal/users"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidAddress indicates the claimed address is not a hex address.
	ErrInvalidAddress = errors.New("wallet: invalid address")
	// ErrSignatureMismatch indicates the recovered signer differs from the claimed address.
	ErrSignatureMismatch = errors.New("wallet: signature does not match address")
	// ErrAddressAlreadyBound indicates another account already owns the address.
	ErrAddressAlreadyBound = errors.New("wallet: address already bound to another account")
	// ErrNoWalletBound indicates unbind was called on an account without a wallet.
	ErrNoWalletBound = errors.New("wallet: no wallet bound to this account")

	errBindingMissingDatabase = errors.New("wallet: binding database required")
	errBindingMissingRegistry = errors.New("wallet: nonce registry required")
	errBindingMissingVerifier = errors.New("wallet: signature verifier required")
)

// BindingServiceConfig describes the collaborators of the binding service.
type BindingServiceConfig struct {
	Database *gorm.DB
	Registry *Registry
	Verifier SignatureVerifier
	Clock    func() time.Time
	Logger   *zap.Logger
}

// BindingService proves wallet ownership via challenge-response and binds
// the proven address to the account.
type BindingService struct {
	db       *gorm.DB
	registry *Registry
	verifier SignatureVerifier
	now      func() time.Time
	logger   *zap.Logger
}

// NewBindingService constructs the binding service.
func NewBindingService(cfg BindingServiceConfig) (*BindingService, error) {
	if cfg.Database == nil {
		return nil, errBindingMissingDatabase
	}
	if cfg.Registry == nil {
		return nil, errBindingMissingRegistry
	}
	if cfg.Verifier == nil {
		return nil, errBindingMissingVerifier
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BindingService{
		db:       cfg.Database,
		registry: cfg.Registry,
		verifier: cfg.Verifier,
		now:      clock,
		logger:   logger,
	}, nil
}

// Bind consumes the nonce, verifies the signature over the stored challenge
// message, and binds the lowercase address to the user. Nonce consumption,
// the cross-account uniqueness check and both row writes share one
// transaction: either the nonce is burned and the address bound, or nothing
// changed.
func (s *BindingService) Bind(ctx context.Context, userID, address, signature, nonce string) (string, error) {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return "", ErrInvalidAddress
	}
	normalized := strings.ToLower(strings.TrimSpace(address))

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.registry.Consume(tx, userID, nonce)
		if err != nil {
			return err
		}

		recovered, err := s.verifier.RecoverAddress(row.Message, signature)
		if err != nil {
			return err
		}
		if !strings.EqualFold(recovered, normalized) {
			return ErrSignatureMismatch
		}

		// The pre-flight uniqueness check a client may have done is not
		// enough; re-validate while holding the transaction so two
		// concurrent binds of the same address cannot both pass.
		var other users.User
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("eth_address = ? AND id <> ?", normalized, userID).
			Take(&other).Error
		if err == nil {
			return ErrAddressAlreadyBound
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("wallet: uniqueness check: %w", err)
		}

		result := tx.Model(&users.User{}).
			Where("id = ?", userID).
			Update("eth_address", normalized)
		if result.Error != nil {
			return fmt.Errorf("wallet: bind update: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return users.ErrUserNotFound
		}
		return nil
	})
	if txErr != nil {
		return "", txErr
	}

	s.logger.Info("wallet bound", zap.String("user_id", userID), zap.String("address", normalized))
	return normalized, nil
}

// Unbind clears the account's wallet binding. No signature is required:
// binding is hard to forge, unbinding is a self-service account action.
func (s *BindingService) Unbind(ctx context.Context, userID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user users.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return users.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("wallet: unbind select: %w", err)
		}
		if user.EthAddress == nil || *user.EthAddress == "" {
			return ErrNoWalletBound
		}
		if err := tx.Model(&users.User{}).
			Where("id = ?", userID).
			Update("eth_address", nil).Error; err != nil {
			return fmt.Errorf("wallet: unbind update: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Info("wallet unbound", zap.String("user_id", userID))
	return nil
}
