package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"cleanspend/internal/models"
)

const upsertBatchSize = 500

// Store persists awards and collection runs in SQLite. Award writes upsert
// on AwardID, so re-collecting an overlapping window never duplicates rows.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&models.Award{}, &models.CollectionRun{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertAwards writes awards in batches, replacing existing rows that share
// an AwardID. Returns the number of rows written.
func (s *Store) UpsertAwards(ctx context.Context, awards []models.Award) (int, error) {
	if len(awards) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "award_id"}},
		UpdateAll: true,
	}).CreateInBatches(awards, upsertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert awards: %w", result.Error)
	}

	s.logger.Debug("stored awards", "rows", result.RowsAffected)
	return int(result.RowsAffected), nil
}

// Awards returns every stored award ordered by start date.
func (s *Store) Awards(ctx context.Context) ([]models.Award, error) {
	var awards []models.Award
	if err := s.db.WithContext(ctx).Order("start_date").Find(&awards).Error; err != nil {
		return nil, fmt.Errorf("load awards: %w", err)
	}
	return awards, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Award{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count awards: %w", err)
	}
	return count, nil
}

// Fingerprint identifies the current store contents: it changes whenever a
// row is added or re-collected. The analytics cache keys on it.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "0-0", nil
	}

	var latest sql.NullTime
	row := s.db.WithContext(ctx).Model(&models.Award{}).Select("MAX(collected_at)").Row()
	if err := row.Scan(&latest); err != nil {
		return "", fmt.Errorf("latest collection time: %w", err)
	}
	if !latest.Valid {
		return fmt.Sprintf("%d-0", count), nil
	}
	return fmt.Sprintf("%d-%d", count, latest.Time.Unix()), nil
}

func (s *Store) SaveRun(ctx context.Context, run *models.CollectionRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run *models.CollectionRun) error {
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// Runs returns the most recent collection runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]models.CollectionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.CollectionRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	return runs, nil
}
