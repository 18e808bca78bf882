package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

type KnowledgeBaseRepo interface {
	List(ctx context.Context, tx *gorm.DB) ([]*types.CourseRecord, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.CourseRecord, error)
	GetByCourse(ctx context.Context, tx *gorm.DB, course string) (*types.CourseRecord, error)
	UpsertByCourse(ctx context.Context, tx *gorm.DB, rec *types.CourseRecord) (*types.CourseRecord, bool, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, id int64) (int64, error)
}

type knowledgeBaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	repoLog := baseLog.With("repo", "KnowledgeBaseRepo")
	return &knowledgeBaseRepo{db: db, log: repoLog}
}

// List returns every record with a usable course name, ordered by course.
func (r *knowledgeBaseRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.CourseRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CourseRecord
	if err := transaction.WithContext(ctx).
		Where("TRIM(course) <> ''").
		Order("course ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *knowledgeBaseRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.CourseRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id <= 0 {
		return nil, nil
	}

	var rec types.CourseRecord
	err := transaction.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *knowledgeBaseRepo) GetByCourse(ctx context.Context, tx *gorm.DB, course string) (*types.CourseRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	course = strings.TrimSpace(course)
	if course == "" {
		return nil, nil
	}

	var rec types.CourseRecord
	err := transaction.WithContext(ctx).Where("course = ?", course).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertByCourse inserts rec or overwrites the row holding the same course name,
// and returns the persisted row plus whether it was newly inserted. The incoming
// id is ignored: the course name is the conflict target.
func (r *knowledgeBaseRepo) UpsertByCourse(ctx context.Context, tx *gorm.DB, rec *types.CourseRecord) (*types.CourseRecord, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := rec.Clone()
	row.ID = 0
	row.Course = strings.TrimSpace(row.Course)
	// both stamps come from the same clock read on insert; an update only moves updated_at
	row.CreatedAt = time.Time{}
	row.UpdatedAt = time.Time{}

	if err := transaction.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "course"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"content", "links", "image_name", "image_type", "image_base64", "updated_at",
			}),
		},
		clause.Returning{},
	).Create(row).Error; err != nil {
		return nil, false, err
	}
	if row.ID == 0 {
		return nil, false, nil
	}
	return row, row.CreatedAt.Equal(row.UpdatedAt), nil
}

func (r *knowledgeBaseRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id int64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id <= 0 {
		return 0, nil
	}

	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.CourseRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
