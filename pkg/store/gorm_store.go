package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"agegate/pkg/domain"
)

const migrateLockID int64 = 48234823

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ProfileModel{}, &EntryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes schema migration across replicas with a
// Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveProfile creates or updates a user profile.
func (s *GormStore) SaveProfile(p domain.UserProfile) error {
	model := profileToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"birth_date", "tier", "verified", "guardian_consent", "updated_at"}),
	}).Create(&model).Error
}

// GetProfile returns a profile by user ID.
func (s *GormStore) GetProfile(userID string) (domain.UserProfile, bool, error) {
	var model ProfileModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// AppendEntry records a conversation entry.
func (s *GormStore) AppendEntry(entry domain.ConversationEntry) error {
	model := entryToModel(entry)
	return s.db.Create(&model).Error
}

// ListEntries returns recent entries for a user, newest first.
func (s *GormStore) ListEntries(userID string, limit int) ([]domain.ConversationEntry, error) {
	if limit <= 0 {
		return []domain.ConversationEntry{}, nil
	}
	var models []EntryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.ConversationEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, entryFromModel(model))
	}
	return entries, nil
}

// DeleteUser removes profile and entries in one transaction and reports
// how many rows went away.
func (s *GormStore) DeleteUser(userID string) (int64, error) {
	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&EntryModel{}, "user_id = ?", userID)
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		res = tx.Delete(&ProfileModel{}, "user_id = ?", userID)
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func profileToModel(p domain.UserProfile) ProfileModel {
	return ProfileModel{
		UserID:          p.UserID,
		BirthDate:       p.BirthDate,
		Tier:            string(p.Tier),
		Verified:        p.Verified,
		GuardianConsent: p.GuardianConsent,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.UserProfile {
	tier := domain.Tier(m.Tier)
	if !tier.Valid() {
		tier = domain.DefaultTier
	}
	return domain.UserProfile{
		UserID:          m.UserID,
		BirthDate:       m.BirthDate,
		Tier:            tier,
		Verified:        m.Verified,
		GuardianConsent: m.GuardianConsent,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func entryToModel(e domain.ConversationEntry) EntryModel {
	rawRedactions, _ := json.Marshal(e.Redactions)
	return EntryModel{
		ID:          e.ID,
		UserID:      e.UserID,
		Role:        string(e.Role),
		Text:        e.Text,
		TierAtWrite: string(e.TierAtWrite),
		Redactions:  rawRedactions,
		CreatedAt:   e.CreatedAt,
	}
}

func entryFromModel(m EntryModel) domain.ConversationEntry {
	var redactions map[string]int
	if len(m.Redactions) > 0 {
		_ = json.Unmarshal(m.Redactions, &redactions)
	}
	return domain.ConversationEntry{
		ID:          m.ID,
		UserID:      m.UserID,
		Role:        domain.Role(m.Role),
		Text:        m.Text,
		TierAtWrite: domain.Tier(m.TierAtWrite),
		Redactions:  redactions,
		CreatedAt:   m.CreatedAt,
	}
}
