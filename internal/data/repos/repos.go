package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/course-assistant-backend/internal/data/repos/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

type KnowledgeBaseRepo = knowledge.KnowledgeBaseRepo

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	return knowledge.NewKnowledgeBaseRepo(db, baseLog)
}
