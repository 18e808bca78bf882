package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
)

// ChangeChannel is the LISTEN/NOTIFY channel fed by the knowledge_bases trigger.
const ChangeChannel = "knowledge_bases_changes"

// The trigger ships identifiers only: pg_notify payloads are capped at 8000
// bytes and rows can carry a base64 image.
const notifyFunctionSQL = `
CREATE OR REPLACE FUNCTION notify_knowledge_bases_change() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
    'table', TG_TABLE_NAME,
    'type', TG_OP,
    'id', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE NEW.id END,
    'old_id', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE OLD.id END
  )::text);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;`

const dropTriggerSQL = `DROP TRIGGER IF EXISTS knowledge_bases_notify ON ` + knowledge.TableKnowledgeBases

const createTriggerSQL = `
CREATE TRIGGER knowledge_bases_notify
AFTER INSERT OR UPDATE OR DELETE ON ` + knowledge.TableKnowledgeBases + `
FOR EACH ROW EXECUTE FUNCTION notify_knowledge_bases_change();`

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&knowledge.CourseRecord{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	if err := db.Exec(notifyFunctionSQL).Error; err != nil {
		return fmt.Errorf("create notify function: %w", err)
	}
	for _, stmt := range []string{dropTriggerSQL, createTriggerSQL} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create notify trigger: %w", err)
		}
	}
	return nil
}
