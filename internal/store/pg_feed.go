package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yungbote/course-assistant-backend/internal/data/db"
	"github.com/yungbote/course-assistant-backend/internal/data/repos"
	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

const pgFeedBuffer = 32

// PGFeed listens on the knowledge_bases trigger channel. Notifications carry
// ids only, so INSERT and UPDATE rows are re-read before delivery.
type PGFeed struct {
	dsn  string
	repo repos.KnowledgeBaseRepo
	log  *logger.Logger
}

// notification mirrors the json_build_object in the knowledge_bases trigger.
type notification struct {
	Table string `json:"table"`
	Type  string `json:"type"`
	ID    *int64 `json:"id"`
	OldID *int64 `json:"old_id"`
}

func NewPGFeed(dsn string, repo repos.KnowledgeBaseRepo, log *logger.Logger) *PGFeed {
	return &PGFeed{dsn: dsn, repo: repo, log: log.With("feed", "postgres")}
}

func (f *PGFeed) Subscribe(ctx context.Context) (Subscription, error) {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return nil, MapError("subscribe", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{db.ChangeChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, MapError("subscribe", err)
	}
	f.log.Info("Listening for knowledge base changes", "channel", db.ChangeChannel)

	produce := func(ctx context.Context, out chan<- []byte) error {
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			raw, ok := f.hydrate(ctx, n.Payload)
			if !ok {
				continue
			}
			if !Send(ctx, out, raw) {
				return nil
			}
		}
	}
	release := func() error { return conn.Close(context.Background()) }
	return Pump(ctx, f.log, pgFeedBuffer, produce, release), nil
}

// Publish is a no-op: the database trigger announces every write.
func (f *PGFeed) Publish(context.Context, ChangePayload) error { return nil }

func (f *PGFeed) Close() error { return nil }

func (f *PGFeed) hydrate(ctx context.Context, payload string) ([]byte, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		f.log.Warn("undecodable notification", "error", err)
		return nil, false
	}
	out, err := f.toChangePayload(ctx, n)
	if err != nil {
		f.log.Warn("dropping notification", "type", n.Type, "error", err)
		return nil, false
	}
	if out == nil {
		return nil, false
	}
	raw, err := out.Encode()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (f *PGFeed) toChangePayload(ctx context.Context, n notification) (*ChangePayload, error) {
	kind := knowledge.ChangeKind(n.Type)
	switch kind {
	case knowledge.ChangeDelete:
		if n.OldID == nil {
			return nil, fmt.Errorf("delete notification without old_id")
		}
		p := DeletePayload(*n.OldID)
		return &p, nil
	case knowledge.ChangeInsert, knowledge.ChangeUpdate:
		if n.ID == nil {
			return nil, fmt.Errorf("%s notification without id", kind)
		}
		rec, err := f.repo.GetByID(ctx, nil, *n.ID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// removed before we could read it; its DELETE follows
			return nil, nil
		}
		p, err := RecordPayload(kind, rec)
		if err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown change type %q", n.Type)
	}
}
