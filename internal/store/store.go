// Package store is the transactional persistence layer. Every read-then-write
// state transition on a code or token pair goes through a single conditional
// statement here, so concurrent requests racing on the same row cannot both
// observe the pre-transition state. The server itself holds no cross-request
// mutable memory; all durable state lives behind this package.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scribehub/scribegate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Client{},
		&models.AuthorizationCode{},
		&models.TokenPair{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying GORM handle for multi-statement transactions.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Health pings the database connection.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Transact runs fn inside one database transaction, retrying transient
// serialization conflicts.
func (s *Store) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return withTxRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
}

// ============================================================
// Client operations
// ============================================================

func (s *Store) CreateClient(client *models.Client) error {
	return s.db.Create(client).Error
}

func (s *Store) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) UpdateClient(client *models.Client) error {
	return s.db.Save(client).Error
}

// UpdateClientSecret swaps the stored secret hash in one statement, so the
// old secret stops authenticating the instant the new one starts.
func (s *Store) UpdateClientSecret(clientID, secretHash string) error {
	return s.db.Model(&models.Client{}).
		Where("client_id = ?", clientID).
		Update("client_secret", secretHash).Error
}

// DeleteClient soft-deletes the registration. Rows referenced by live grants
// stay queryable through Unscoped for audit purposes.
func (s *Store) DeleteClient(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.Client{}).Error
}

func (s *Store) ListClientsByTeam(teamID string) ([]models.Client, error) {
	var clients []models.Client
	err := s.db.Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&clients).Error
	return clients, err
}

// ============================================================
// Authorization code operations
// ============================================================

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

func (s *Store) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &code, nil
}

// ConsumeAuthorizationCode performs the atomic test-and-set on consumed_at.
// The WHERE consumed_at IS NULL guard means exactly one concurrent exchange
// can win; every loser gets ErrCodeAlreadyConsumed.
func (s *Store) ConsumeAuthorizationCode(id uint) error {
	result := s.db.Model(&models.AuthorizationCode{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeAlreadyConsumed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes(before time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", before).Delete(&models.AuthorizationCode{})
	return result.RowsAffected, result.Error
}

// ============================================================
// Token pair operations
// ============================================================

func (s *Store) CreateTokenPair(pair *models.TokenPair) error {
	return s.db.Create(pair).Error
}

func (s *Store) GetTokenPairByID(id string) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := s.db.Where("id = ?", id).First(&pair).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &pair, nil
}

// GetTokenPairsByAccessLookup returns candidate rows for an access token's
// embedded lookup id. The caller verifies the salted hash; lookup collisions
// are possible and harmless.
func (s *Store) GetTokenPairsByAccessLookup(lookup string) ([]*models.TokenPair, error) {
	var pairs []*models.TokenPair
	err := s.db.Where("access_token_lookup = ?", lookup).Find(&pairs).Error
	return pairs, err
}

func (s *Store) GetTokenPairsByRefreshLookup(lookup string) ([]*models.TokenPair, error) {
	var pairs []*models.TokenPair
	err := s.db.Where("refresh_token_lookup = ?", lookup).Find(&pairs).Error
	return pairs, err
}

// RotateTokenPair atomically claims the presented pair and creates its
// successor in one transaction. The conditional status update is the
// rotation's linearization point: of two concurrent refreshes with the same
// token, exactly one sees RowsAffected == 1.
func (s *Store) RotateTokenPair(
	ctx context.Context,
	oldID string,
	successor *models.TokenPair,
) error {
	return s.Transact(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&models.TokenPair{}).
			Where("id = ? AND status = ?", oldID, models.TokenStatusActive).
			Update("status", models.TokenStatusRotated)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTokenPairNotActive
		}
		return tx.Create(successor).Error
	})
}

// TouchTokenPair updates last_active_at. Best-effort: callers ignore the
// error and never block a validation on it.
func (s *Store) TouchTokenPair(id string) error {
	now := time.Now()
	return s.db.Model(&models.TokenPair{}).
		Where("id = ?", id).
		Update("last_active_at", &now).Error
}

func (s *Store) DeleteExpiredTokenPairs(before time.Time) (int64, error) {
	result := s.db.Where("refresh_expires_at < ?", before).Delete(&models.TokenPair{})
	return result.RowsAffected, result.Error
}

// ============================================================
// Grant operations
// ============================================================

// RevokeGrant deletes every authorization code and token pair sharing the
// grantID in one transaction. Idempotent: revoking a revoked or unknown
// grant deletes zero rows and succeeds, so the endpoint cannot be used to
// probe for grant existence.
func (s *Store) RevokeGrant(ctx context.Context, grantID string) (int64, error) {
	var removed int64
	err := s.Transact(ctx, func(tx *gorm.DB) error {
		removed = 0
		result := tx.Where("grant_id = ?", grantID).Delete(&models.AuthorizationCode{})
		if result.Error != nil {
			return result.Error
		}
		removed += result.RowsAffected

		result = tx.Where("grant_id = ?", grantID).Delete(&models.TokenPair{})
		if result.Error != nil {
			return result.Error
		}
		removed += result.RowsAffected
		return nil
	})
	return removed, err
}

// CountActiveTokenPairsByClient reports how many active token pairs a client
// currently holds, enforcing the per-client issuance cap. Rotated tombstones
// do not count against it.
func (s *Store) CountActiveTokenPairsByClient(clientID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.TokenPair{}).
		Where("client_id = ? AND status = ?", clientID, models.TokenStatusActive).
		Count(&count).Error
	return count, err
}

// ============================================================
// Gauge counts (metrics refresh job)
// ============================================================

func (s *Store) CountTokenPairsByStatus(status string) (int64, error) {
	var count int64
	err := s.db.Model(&models.TokenPair{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (s *Store) CountPendingAuthorizationCodes() (int64, error) {
	var count int64
	err := s.db.Model(&models.AuthorizationCode{}).
		Where("consumed_at IS NULL AND expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}

// ============================================================
// Audit log operations
// ============================================================

func (s *Store) CreateAuditLog(log *models.AuditLog) error {
	return s.db.Create(log).Error
}

func (s *Store) CreateAuditLogBatch(logs []*models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.Create(logs).Error
}

func (s *Store) DeleteAuditLogsBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("event_time < ?", cutoff).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}
