package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marminbh/toxicity-score-svc/internal/models"
)

const pgUniqueViolation = "23505"

// commentRow is the gorm model behind PostgresStore. pk is a surrogate key;
// the logical id is unique among rows that are not soft-deleted.
type commentRow struct {
	PK                int64          `gorm:"column:pk;primaryKey;autoIncrement"`
	ID                string         `gorm:"column:id;type:text;not null"`
	UserID            string         `gorm:"column:user_id;type:text;not null"`
	Content           string         `gorm:"column:content;type:text;not null"`
	OriginalTimestamp string         `gorm:"column:original_timestamp;type:text;not null"`
	Score             float64        `gorm:"column:score;not null"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt         *time.Time     `gorm:"column:updated_at;autoUpdateTime:false"`
	DeletedAt         gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (commentRow) TableName() string {
	return "comments"
}

func toRow(rec models.CommentRecord) commentRow {
	return commentRow{
		ID:                rec.ID,
		UserID:            rec.UserID,
		Content:           rec.Content,
		OriginalTimestamp: rec.OriginalTimestamp,
		Score:             rec.Score,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func (r commentRow) record() models.CommentRecord {
	rec := models.CommentRecord{
		ID:                r.ID,
		UserID:            r.UserID,
		Content:           r.Content,
		OriginalTimestamp: r.OriginalTimestamp,
		Score:             r.Score,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.DeletedAt.Valid {
		deletedAt := r.DeletedAt.Time
		rec.DeletedAt = &deletedAt
	}
	return rec
}

// PostgresStore implements RecordStore with gorm. Deletes are soft deletes:
// deleted_at is set and the row stops matching, so the id can be created again.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	err := s.db.WithContext(ctx).Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS comments_id_active_key ON comments (id) WHERE deleted_at IS NULL`,
	).Error
	if err != nil {
		return unavailable("ensure_schema", "comments_id_active_key", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, record models.CommentRecord) (models.CommentRecord, error) {
	if !models.ValidScore(record.Score) {
		return models.CommentRecord{}, invalidScore("create", record.ID)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = s.now()
	record.UpdatedAt = nil
	record.DeletedAt = nil

	row := toRow(record)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return models.CommentRecord{}, conflict("create", record.ID, err)
		}
		return models.CommentRecord{}, unavailable("create", record.ID, err)
	}
	return row.record(), nil
}

func (s *PostgresStore) UpdateScore(ctx context.Context, id string, score float64) (models.CommentRecord, error) {
	if !models.ValidScore(score) {
		return models.CommentRecord{}, invalidScore("update", id)
	}

	var rows []commentRow
	err := s.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score":      score,
			"updated_at": s.now(),
		}).Error
	if err != nil {
		return models.CommentRecord{}, unavailable("update", id, err)
	}
	if len(rows) == 0 {
		return models.CommentRecord{}, notFound("update", id)
	}
	return rows[0].record(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&commentRow{})
	if res.Error != nil {
		return false, unavailable("delete", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (models.CommentRecord, error) {
	var row commentRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CommentRecord{}, notFound("find", id)
	}
	if err != nil {
		return models.CommentRecord{}, unavailable("find", id, err)
	}
	return row.record(), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
