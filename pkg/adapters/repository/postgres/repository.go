package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// linkRecord is the GORM model of the links table.
type linkRecord struct {
	ID            int64     `gorm:"primaryKey"`
	Code          string    `gorm:"size:8;uniqueIndex;not null"`
	LongURL       string    `gorm:"type:text;not null"`
	Clicks        int64     `gorm:"not null;default:0;check:clicks >= 0"`
	LastClickedAt *time.Time
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (linkRecord) TableName() string { return "links" }

func (r *linkRecord) toDomain() *domain.Link {
	return &domain.Link{
		ID:            r.ID,
		Code:          r.Code,
		LongURL:       r.LongURL,
		Clicks:        r.Clicks,
		LastClickedAt: r.LastClickedAt,
		CreatedAt:     r.CreatedAt,
	}
}

type PostgresRepository struct {
	db *gorm.DB
}

// IsPostgresURL reports whether dbURL is a PostgreSQL connection string.
func IsPostgresURL(dbURL string) bool {
	return strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://")
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := migrate(context.Background(), db); err != nil {
		return nil, err
	}

	return &PostgresRepository{db: db}, nil
}

// migrate creates the links table and closes the pool when that fails.
func migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&linkRecord{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, link *domain.Link) error {
	rec := linkRecord{
		Code:      link.Code,
		LongURL:   link.LongURL,
		CreatedAt: link.CreatedAt,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	link.ID = rec.ID
	link.Clicks = 0
	link.LastClickedAt = nil
	return nil
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*domain.Link, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PostgresRepository) first(ctx context.Context, cond string, arg any) (*domain.Link, error) {
	var rec linkRecord
	err := r.db.WithContext(ctx).Where(cond, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *PostgresRepository) IncrementClicks(ctx context.Context, code string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&linkRecord{}).
		Where("code = ?", code).
		UpdateColumns(map[string]any{
			"clicks":          gorm.Expr("clicks + ?", 1),
			"last_clicked_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *PostgresRepository) UpdateCode(ctx context.Context, oldCode, newCode string) (*domain.Link, error) {
	var link *domain.Link
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&linkRecord{}).Where("code = ?", oldCode).UpdateColumn("code", newCode)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return domain.ErrConflict
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		var rec linkRecord
		if err := tx.Where("code = ?", newCode).First(&rec).Error; err != nil {
			return err
		}
		link = rec.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&linkRecord{}, id)
	return res.RowsAffected > 0, res.Error
}

func (r *PostgresRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&linkRecord{}).Count(&count).Error
	return count, err
}

func (r *PostgresRepository) SumClicks(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&linkRecord{}).Select("COALESCE(SUM(clicks), 0)").Scan(&total).Error
	return total, err
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]domain.Link, error) {
	var recs []linkRecord
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(recs), nil
}

func (r *PostgresRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	var recs []linkRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return toDomainSlice(recs), nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toDomainSlice(recs []linkRecord) []domain.Link {
	links := make([]domain.Link, 0, len(recs))
	for i := range recs {
		links = append(links, *recs[i].toDomain())
	}
	return links
}

// isUniqueViolation matches SQLSTATE 23505 whether or not GORM translated it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Ensure interface compliance
var _ ports.LinkStore = (*PostgresRepository)(nil)
