package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
)

// Store is the knowledge store boundary the reconciler talks to.
type Store interface {
	FetchAll(ctx context.Context) ([]*knowledge.CourseRecord, error)
	// Upsert writes rec with the course name as conflict target and returns the persisted row.
	Upsert(ctx context.Context, rec *knowledge.CourseRecord) (*knowledge.CourseRecord, error)
	Delete(ctx context.Context, id int64) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one open change-notification channel. Messages is closed once
// the subscription ends, either through Close or because the feed failed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Feed is a source of change payloads for the knowledge_bases table.
type Feed interface {
	Subscribe(ctx context.Context) (Subscription, error)
	// Publish announces a change made by this process. Feeds fed by the
	// database itself treat it as a no-op.
	Publish(ctx context.Context, payload ChangePayload) error
	Close() error
}

// ChangePayload is the message shape every feed delivers.
type ChangePayload struct {
	Table     string          `json:"table"`
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

type oldRecord struct {
	ID int64 `json:"id"`
}

func RecordPayload(kind knowledge.ChangeKind, rec *knowledge.CourseRecord) (ChangePayload, error) {
	if kind != knowledge.ChangeInsert && kind != knowledge.ChangeUpdate {
		return ChangePayload{}, fmt.Errorf("record payload for %s", kind)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{Table: knowledge.TableKnowledgeBases, Type: string(kind), Record: raw}, nil
}

func DeletePayload(id int64) ChangePayload {
	raw, _ := json.Marshal(oldRecord{ID: id})
	return ChangePayload{Table: knowledge.TableKnowledgeBases, Type: string(knowledge.ChangeDelete), OldRecord: raw}
}

func (p ChangePayload) Encode() ([]byte, error) { return json.Marshal(p) }
