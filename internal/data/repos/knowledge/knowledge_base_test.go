package knowledge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/course-assistant-backend/internal/data/repos/testutil"
	types "github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
)

func TestKnowledgeBaseRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewKnowledgeBaseRepo(db, testutil.Logger(t))

	saved, inserted, err := repo.UpsertByCourse(ctx, nil, &types.CourseRecord{Course: "Historia", Content: "v1"})
	if err != nil {
		t.Fatalf("UpsertByCourse insert: %v", err)
	}
	if !inserted || saved.ID == 0 || saved.Content != "v1" {
		t.Fatalf("unexpected insert result: inserted=%v rec=%+v", inserted, saved)
	}

	img := &types.CourseRecord{ID: 999, Course: "Historia", Content: "v2", Links: "https://a.example"}
	img.SetImage(&types.Image{Name: "map.png", Type: "image/png", Base64: "iVBORw0KGgo="})
	again, inserted, err := repo.UpsertByCourse(ctx, nil, img)
	if err != nil {
		t.Fatalf("UpsertByCourse update: %v", err)
	}
	if inserted {
		t.Fatalf("second upsert for the same course must update")
	}
	if again.ID != saved.ID {
		t.Fatalf("conflict on course must keep id: want=%d got=%d", saved.ID, again.ID)
	}
	if again.Content != "v2" || again.Image() == nil {
		t.Fatalf("update not applied: %+v", again)
	}

	again.SetImage(nil)
	cleared, _, err := repo.UpsertByCourse(ctx, nil, again)
	if err != nil {
		t.Fatalf("UpsertByCourse clear image: %v", err)
	}
	if cleared.Image() != nil || cleared.ImageBase64 != nil {
		t.Fatalf("image not cleared: %+v", cleared)
	}

	if got, err := repo.GetByID(ctx, nil, saved.ID); err != nil || got == nil || got.Course != "Historia" {
		t.Fatalf("GetByID: err=%v rec=%+v", err, got)
	}
	if got, err := repo.GetByCourse(ctx, nil, " Historia "); err != nil || got == nil || got.ID != saved.ID {
		t.Fatalf("GetByCourse: err=%v rec=%+v", err, got)
	}
	if got, err := repo.GetByID(ctx, nil, 12345); err != nil || got != nil {
		t.Fatalf("GetByID missing: err=%v rec=%+v", err, got)
	}

	n, err := repo.DeleteByID(ctx, nil, saved.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteByID: n=%d err=%v", n, err)
	}
	if n, err := repo.DeleteByID(ctx, nil, saved.ID); err != nil || n != 0 {
		t.Fatalf("DeleteByID twice: n=%d err=%v", n, err)
	}
}

func TestKnowledgeBaseRepoListSkipsGhostRecords(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewKnowledgeBaseRepo(db, testutil.Logger(t))

	testutil.SeedCourse(t, ctx, db, "Zoología", "z")
	testutil.SeedCourse(t, ctx, db, "   ", "ghost")
	testutil.SeedCourse(t, ctx, db, "Biología", "b")

	rows, err := repo.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("List: want 2 rows, got %d", len(rows))
	}
	if rows[0].Course != "Biología" || rows[1].Course != "Zoología" {
		t.Fatalf("List order: %s, %s", rows[0].Course, rows[1].Course)
	}
}

func TestKnowledgeBaseRepoTransactionRollback(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewKnowledgeBaseRepo(db, testutil.Logger(t))

	tx := db.Begin()
	if _, _, err := repo.UpsertByCourse(ctx, tx, &types.CourseRecord{Course: "Temporal"}); err != nil {
		t.Fatalf("UpsertByCourse in tx: %v", err)
	}
	if err := tx.Rollback().Error; err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got, err := repo.GetByCourse(ctx, nil, "Temporal"); err != nil || got != nil {
		t.Fatalf("rolled back row visible: err=%v rec=%+v", err, got)
	}
}

func TestKnowledgeBaseRepoUpsertReportsOwnOutcome(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewKnowledgeBaseRepo(db, testutil.Logger(t))

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserts  int
		ids      = map[int64]struct{}{}
		firstErr error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saved, inserted, err := repo.UpsertByCourse(ctx, nil, &types.CourseRecord{Course: "Química", Content: "v"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				firstErr = err
				return
			}
			if inserted {
				inserts++
			}
			ids[saved.ID] = struct{}{}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("UpsertByCourse: %v", firstErr)
	}
	if inserts != 1 || len(ids) != 1 {
		t.Fatalf("concurrent first saves: want one insert on one id, got inserts=%d ids=%v", inserts, ids)
	}

	// caller-supplied stamps must not decide the outcome
	stale := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := &types.CourseRecord{Course: "Geografía", CreatedAt: stale, UpdatedAt: stale.Add(time.Hour)}
	saved, inserted, err := repo.UpsertByCourse(ctx, nil, fresh)
	if err != nil {
		t.Fatalf("UpsertByCourse fresh: %v", err)
	}
	if !inserted || saved.CreatedAt.Equal(stale) {
		t.Fatalf("new course must be reported as inserted with fresh stamps: inserted=%v rec=%+v", inserted, saved)
	}

	saved.Content = "v2"
	again, inserted, err := repo.UpsertByCourse(ctx, nil, saved)
	if err != nil {
		t.Fatalf("UpsertByCourse again: %v", err)
	}
	if inserted || again.ID != saved.ID {
		t.Fatalf("resave must be reported as update: inserted=%v rec=%+v", inserted, again)
	}
	if !again.UpdatedAt.After(again.CreatedAt) {
		t.Fatalf("update must move updated_at: %+v", again)
	}
}
