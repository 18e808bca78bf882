package kbsync

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/pkg/pointers"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

func course(id int64, name, content string) *knowledge.CourseRecord {
	return &knowledge.CourseRecord{ID: id, Course: name, Content: content}
}

func newTestReconciler(t *testing.T, st store.Store) *Reconciler {
	t.Helper()
	return NewReconciler(st, logger.Nop(), Config{Locale: "es", StoreTimeout: 2 * time.Second})
}

func names(recs []*knowledge.CourseRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Course
	}
	return out
}

func TestInsertIsIdempotent(t *testing.T) {
	r := newTestReconciler(t, newMemStore())
	ev := knowledge.Inserted(course(1, "Física", "f"))

	if err := r.ApplyChangeEvent(ev); err != nil {
		t.Fatalf("ApplyChangeEvent: %v", err)
	}
	once := r.Records()
	if err := r.ApplyChangeEvent(ev); err != nil {
		t.Fatalf("ApplyChangeEvent twice: %v", err)
	}
	if diff := cmp.Diff(once, r.Records()); diff != "" {
		t.Fatalf("second INSERT changed the cache (-once +twice):\n%s", diff)
	}
}

func TestCacheStaysSortedUnderAnyEventSequence(t *testing.T) {
	pool := []string{"Zoología", "Álgebra", "biología", "Cálculo", "Ética", "Economía", "Química", "álgebra lineal"}
	coll := collate.New(language.Spanish, collate.IgnoreCase)
	rng := rand.New(rand.NewSource(42))

	r := newTestReconciler(t, newMemStore())
	for step := 0; step < 300; step++ {
		id := int64(rng.Intn(10) + 1)
		var ev knowledge.ChangeEvent
		switch rng.Intn(3) {
		case 0:
			ev = knowledge.Inserted(course(id, pool[rng.Intn(len(pool))], "i"))
		case 1:
			ev = knowledge.Updated(course(id, pool[rng.Intn(len(pool))], "u"))
		default:
			ev = knowledge.Deleted(id)
		}
		if err := r.ApplyChangeEvent(ev); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		recs := r.Records()
		for i := 1; i < len(recs); i++ {
			if coll.CompareString(recs[i-1].Course, recs[i].Course) > 0 {
				t.Fatalf("step %d: cache not sorted: %v", step, names(recs))
			}
		}
	}
}

func TestDeleteDropsCourseFromSelection(t *testing.T) {
	r := newTestReconciler(t, newMemStore())
	_ = r.ApplyChangeEvent(knowledge.Inserted(course(7, "Algebra I", "a")))
	_ = r.ApplyChangeEvent(knowledge.Inserted(course(8, "Historia", "h")))
	r.Toggle("Algebra I")
	r.Toggle("Historia")
	r.SetEditing("Algebra I")

	if err := r.ApplyChangeEvent(knowledge.Deleted(7)); err != nil {
		t.Fatalf("ApplyChangeEvent: %v", err)
	}
	if diff := cmp.Diff([]string{"Historia"}, r.Selected()); diff != "" {
		t.Fatalf("selection (-want +got):\n%s", diff)
	}
	if r.Editing() != "" {
		t.Fatalf("editing course should be cleared, got %q", r.Editing())
	}
	if got := names(r.SelectedRecords()); len(got) != 1 || got[0] != "Historia" {
		t.Fatalf("SelectedRecords: %v", got)
	}
}

func TestSaveCourseOnEmptyStore(t *testing.T) {
	r := newTestReconciler(t, newMemStore())
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	saved, err := r.SaveCourse(context.Background(), &knowledge.CourseRecord{Course: "New Course", Content: "x"})
	if err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	if saved.ID == 0 {
		t.Fatalf("saved record must carry the assigned id")
	}
	recs := r.Records()
	if len(recs) != 1 || recs[0].Course != "New Course" || recs[0].ID != saved.ID {
		t.Fatalf("cache after save: %+v", recs)
	}
	if r.Editing() != "New Course" {
		t.Fatalf("editing course after save: %q", r.Editing())
	}
}

func TestSaveCourseMergesEchoBeforeResponse(t *testing.T) {
	st := newMemStore()
	r := newTestReconciler(t, st)
	ctx := context.Background()

	// echo delivered first, then the save response
	_ = r.ApplyChangeEvent(knowledge.Inserted(course(1, "Arte", "v1")))
	if _, err := r.SaveCourse(ctx, &knowledge.CourseRecord{Course: "Arte", Content: "v1"}); err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	if recs := r.Records(); len(recs) != 1 {
		t.Fatalf("echo plus response must leave one record, got %v", names(recs))
	}

	// response first, then the echo
	saved, err := r.SaveCourse(ctx, &knowledge.CourseRecord{Course: "Arte", Content: "v2"})
	if err != nil {
		t.Fatalf("SaveCourse: %v", err)
	}
	_ = r.ApplyChangeEvent(knowledge.Updated(saved))
	recs := r.Records()
	if len(recs) != 1 || recs[0].Content != "v2" {
		t.Fatalf("cache after echo: %+v", recs)
	}
}

func TestSaveCourseFailureLeavesCache(t *testing.T) {
	st := newMemStore(course(1, "Arte", "v1"))
	r := newTestReconciler(t, st)
	_ = r.Load(context.Background())
	before := r.Records()

	st.upsertErr = store.NewError(store.CodePolicy, "upsert", "new row violates row-level security policy", nil)
	_, err := r.SaveCourse(context.Background(), &knowledge.CourseRecord{Course: "Arte", Content: "v2"})
	if !IsKind(err, KindSave) {
		t.Fatalf("want SaveError, got %v", err)
	}
	if !store.IsCode(err, store.CodePolicy) {
		t.Fatalf("store cause must stay reachable: %v", err)
	}
	if diff := cmp.Diff(before, r.Records()); diff != "" {
		t.Fatalf("failed save changed cache (-before +after):\n%s", diff)
	}
	if r.Err() == nil {
		t.Fatalf("failed save must be observable")
	}
}

func TestSaveCourseRejectsInvalidRecords(t *testing.T) {
	st := newMemStore()
	r := newTestReconciler(t, st)

	partial := &knowledge.CourseRecord{Course: "Arte", ImageName: pointers.String("a.png")}

	for _, rec := range []*knowledge.CourseRecord{nil, {Course: "   "}, partial} {
		_, err := r.SaveCourse(context.Background(), rec)
		if !IsKind(err, KindSave) || !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("want invalid SaveError for %+v, got %v", rec, err)
		}
	}
	if st.upserts != 0 {
		t.Fatalf("invalid records must not reach the store")
	}
}

func TestFailedDeleteKeepsRecord(t *testing.T) {
	st := newMemStore(course(3, "Geografía", "g"))
	r := newTestReconciler(t, st)
	_ = r.Load(context.Background())
	before := r.Records()

	st.deleteErr = errors.New("permission denied for table knowledge_bases")
	err := r.DeleteCourse(context.Background(), 3)
	if !IsKind(err, KindDelete) {
		t.Fatalf("want DeleteError, got %v", err)
	}
	if diff := cmp.Diff(before, r.Records()); diff != "" {
		t.Fatalf("failed delete changed cache (-before +after):\n%s", diff)
	}
}

func TestDeleteWaitsForEcho(t *testing.T) {
	st := newMemStore(course(3, "Geografía", "g"))
	r := newTestReconciler(t, st)
	_ = r.Load(context.Background())

	if err := r.DeleteCourse(context.Background(), 3); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	if len(r.Records()) != 1 {
		t.Fatalf("delete must not remove locally before the DELETE event")
	}
	_ = r.ApplyChangeEvent(knowledge.Deleted(3))
	if len(r.Records()) != 0 {
		t.Fatalf("DELETE event must remove the record")
	}
}

func TestUpdatesLastAppliedWins(t *testing.T) {
	a := knowledge.Updated(course(5, "Música", "from A"))
	b := knowledge.Updated(course(5, "Música", "from B"))

	for _, order := range [][]knowledge.ChangeEvent{{a, b}, {b, a}} {
		r := newTestReconciler(t, newMemStore())
		_ = r.ApplyChangeEvent(knowledge.Inserted(course(5, "Música", "orig")))
		for _, ev := range order {
			_ = r.ApplyChangeEvent(ev)
		}
		want := order[len(order)-1].Record.Content
		if got := r.Records()[0].Content; got != want {
			t.Fatalf("want %q, got %q", want, got)
		}
	}
}

func TestUpdateForUnknownIDIsNoop(t *testing.T) {
	r := newTestReconciler(t, newMemStore())
	_ = r.ApplyChangeEvent(knowledge.Updated(course(9, "Latín", "l")))
	if len(r.Records()) != 0 {
		t.Fatalf("UPDATE without a cached record must be ignored")
	}
}

func TestLoadFailureKeepsPriorCache(t *testing.T) {
	st := newMemStore(course(1, "Arte", "a"), course(2, "Biología", "b"))
	r := newTestReconciler(t, st)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"Arte"}, r.Selected()); diff != "" {
		t.Fatalf("first load selects the first course (-want +got):\n%s", diff)
	}

	st.fetchErr = store.NewError(store.CodeUnavailable, "fetch", "connection refused", nil)
	err := r.Load(context.Background())
	if !IsKind(err, KindFetch) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if got := names(r.Records()); len(got) != 2 {
		t.Fatalf("failed load must keep cache, got %v", got)
	}
	if r.Err() == nil || r.Snapshot().Error == "" {
		t.Fatalf("failed load must be observable")
	}

	st.fetchErr = nil
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Err() != nil {
		t.Fatalf("successful load clears the error")
	}
	if r.Loading() {
		t.Fatalf("loading flag must reset")
	}
}

func TestLoadReplaysEventsFromDuringFetch(t *testing.T) {
	mem := newMemStore(course(1, "Arte", "a"), course(2, "Biología", "b"))
	var r *Reconciler
	st := &writeDuringFetch{memStore: mem, write: func(context.Context) {
		// the fetched rows predate these events
		for _, ev := range []knowledge.ChangeEvent{
			knowledge.Inserted(course(3, "Cálculo", "c")),
			knowledge.Updated(course(1, "Arte", "a2")),
			knowledge.Deleted(2),
		} {
			if err := r.ApplyChangeEvent(ev); err != nil {
				t.Fatalf("ApplyChangeEvent: %v", err)
			}
		}
	}}
	r = newTestReconciler(t, st)

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := r.Records()
	if diff := cmp.Diff([]string{"Arte", "Cálculo"}, names(got)); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
	if got[0].Content != "a2" {
		t.Fatalf("update from during the fetch lost: %+v", got[0])
	}
	if r.Loading() {
		t.Fatalf("loading flag must reset")
	}

	// later events apply directly once no load is in flight
	if err := r.ApplyChangeEvent(knowledge.Deleted(3)); err != nil {
		t.Fatalf("ApplyChangeEvent: %v", err)
	}
	if diff := cmp.Diff([]string{"Arte"}, names(r.Records())); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestLoadSkipsGhostRecords(t *testing.T) {
	st := newMemStore(course(1, " ", "ghost"), course(2, "Zoología", "z"), course(3, "Álgebra", "a"))
	r := newTestReconciler(t, st)
	_ = r.Load(context.Background())
	if diff := cmp.Diff([]string{"Álgebra", "Zoología"}, names(r.Records())); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestSaveInFlightGuard(t *testing.T) {
	st := newMemStore()
	gate := make(chan struct{})
	st.upsertGate = gate
	r := newTestReconciler(t, st)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = r.SaveCourse(context.Background(), &knowledge.CourseRecord{Course: "Arte"})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st.mu.Lock()
		n := st.upserts
		st.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first save never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := r.SaveCourse(context.Background(), &knowledge.CourseRecord{Course: "Arte"})
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("want ErrInFlight, got %v", err)
	}
	close(gate)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first save: %v", firstErr)
	}
	if _, err := r.SaveCourse(context.Background(), &knowledge.CourseRecord{Course: "Arte"}); err != nil {
		t.Fatalf("save after completion: %v", err)
	}
}

func TestOnChangeFires(t *testing.T) {
	r := newTestReconciler(t, newMemStore())
	var mu sync.Mutex
	calls := 0
	r.OnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	_ = r.ApplyChangeEvent(knowledge.Inserted(course(1, "Arte", "a")))
	r.Toggle("Arte")
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("want 2 change notifications, got %d", calls)
	}
}
