package kbsync

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

const (
	DefaultLocale       = "es"
	DefaultStoreTimeout = 15 * time.Second
)

type Config struct {
	// Locale drives the collation used to order course names.
	Locale       string
	StoreTimeout time.Duration
}

// State is a point-in-time copy of everything a UI renders from a Reconciler.
type State struct {
	Records  []*knowledge.CourseRecord `json:"records"`
	Selected []string                  `json:"selected"`
	Editing  string                    `json:"editing,omitempty"`
	Loading  bool                      `json:"loading"`
	Error    string                    `json:"error,omitempty"`
}

// Reconciler owns the local mirror of the knowledge store. All cache and
// selection writes go through it and are serialised by mu; store calls are
// made without holding mu.
type Reconciler struct {
	store   store.Store
	log     *logger.Logger
	timeout time.Duration

	mu        sync.Mutex
	coll      *collate.Collator
	records   []*knowledge.CourseRecord
	selection *Selection
	editing   string
	loads     int
	loaded    bool
	err       error
	inflight  map[string]struct{}
	hooks     []func()

	// pending holds change events that arrived while a load was in flight.
	pending []knowledge.ChangeEvent
}

func NewReconciler(st store.Store, baseLog *logger.Logger, cfg Config) *Reconciler {
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		baseLog.Warn("unknown sort locale, falling back", "locale", locale, "fallback", DefaultLocale)
		tag = language.Make(DefaultLocale)
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Reconciler{
		store:     st,
		log:       baseLog.With("component", "Reconciler"),
		timeout:   timeout,
		coll:      collate.New(tag, collate.IgnoreCase),
		selection: NewSelection(),
		inflight:  map[string]struct{}{},
	}
}

// OnChange registers fn to run after every state change, outside the lock.
func (r *Reconciler) OnChange(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Load replaces the cache with the store's current list. Change events that
// arrive while the fetch is in flight are replayed on top of the fetched list.
// On failure the cache keeps its prior contents and the error becomes
// observable through Err.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	r.loads++
	r.mu.Unlock()
	r.notify()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := r.store.FetchAll(ctx)

	r.mu.Lock()
	if err != nil {
		kerr := newError(KindFetch, err)
		r.err = kerr
		r.replayPendingLocked()
		r.mu.Unlock()
		r.log.Error("load knowledge base failed", "error", err)
		r.notify()
		return kerr
	}

	next := make([]*knowledge.CourseRecord, 0, len(rows))
	for _, row := range rows {
		if row == nil || strings.TrimSpace(row.Course) == "" {
			continue
		}
		rec := row.Clone()
		rec.NormalizeImage()
		next = append(next, rec)
	}
	r.records = next
	r.replayPendingLocked()
	r.err = nil
	if !r.loaded {
		r.loaded = true
		if r.selection.Len() == 0 && len(r.records) > 0 {
			r.selection.Toggle(r.records[0].Course)
		}
	}
	count := len(r.records)
	r.mu.Unlock()

	r.log.Debug("knowledge base loaded", "count", count)
	r.notify()
	return nil
}

// ApplyChangeEvent merges one change event into the cache.
func (r *Reconciler) ApplyChangeEvent(ev knowledge.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.loads > 0 {
		r.pending = append(r.pending, ev)
	}
	r.applyLocked(ev)
	r.sortLocked()
	r.mu.Unlock()

	r.notify()
	return nil
}

// replayPendingLocked re-applies the events buffered since the oldest load in
// flight began, then ends this load. The merge rules make replays idempotent.
func (r *Reconciler) replayPendingLocked() {
	for _, ev := range r.pending {
		r.applyLocked(ev)
	}
	r.sortLocked()
	r.loads--
	if r.loads == 0 {
		r.pending = nil
	}
}

func (r *Reconciler) applyLocked(ev knowledge.ChangeEvent) {
	switch ev.Kind {
	case knowledge.ChangeInsert:
		if r.indexByIDLocked(ev.Record.ID) < 0 && strings.TrimSpace(ev.Record.Course) != "" {
			r.records = append(r.records, normalized(ev.Record))
		}
	case knowledge.ChangeUpdate:
		if i := r.indexByIDLocked(ev.Record.ID); i >= 0 {
			r.records[i] = normalized(ev.Record)
		}
	case knowledge.ChangeDelete:
		if i := r.indexByIDLocked(ev.ID); i >= 0 {
			course := r.records[i].Course
			r.records = slices.Delete(r.records, i, i+1)
			r.selection.Remove(course)
			if r.editing == course {
				r.editing = ""
			}
		}
	}
}

// SaveCourse upserts rec keyed by course name and merges the persisted row.
func (r *Reconciler) SaveCourse(ctx context.Context, rec *knowledge.CourseRecord) (*knowledge.CourseRecord, error) {
	if rec == nil {
		return nil, newError(KindSave, ErrInvalidRecord)
	}
	if err := rec.Validate(); err != nil {
		return nil, newError(KindSave, fmt.Errorf("%w: %w", ErrInvalidRecord, err))
	}
	row := rec.Clone()
	row.Course = strings.TrimSpace(row.Course)

	key := "save:" + row.Course
	if !r.acquire(key) {
		return nil, newError(KindSave, ErrInFlight)
	}
	defer r.release(key)

	ctx, cancel := r.detached(ctx)
	defer cancel()
	saved, err := r.store.Upsert(ctx, row)
	if err != nil {
		kerr := newError(KindSave, err)
		r.recordErr(kerr)
		r.log.Error("save course failed", "course", row.Course, "error", err)
		return nil, kerr
	}

	r.mu.Lock()
	merged := normalized(saved)
	i := r.indexByIDLocked(merged.ID)
	if i < 0 {
		i = r.indexByCourseLocked(merged.Course)
	}
	if i >= 0 {
		r.records[i] = merged
	} else {
		r.records = append(r.records, merged)
	}
	r.sortLocked()
	r.editing = merged.Course
	out := merged.Clone()
	r.mu.Unlock()

	r.log.Info("course saved", "course", out.Course, "id", out.ID)
	r.notify()
	return out, nil
}

// DeleteCourse asks the store to delete id. The cache is only updated once the
// DELETE change event arrives.
func (r *Reconciler) DeleteCourse(ctx context.Context, id int64) error {
	if id <= 0 {
		return newError(KindDelete, fmt.Errorf("%w: id must be positive", ErrInvalidRecord))
	}
	key := "delete:" + strconv.FormatInt(id, 10)
	if !r.acquire(key) {
		return newError(KindDelete, ErrInFlight)
	}
	defer r.release(key)

	ctx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.store.Delete(ctx, id); err != nil {
		kerr := newError(KindDelete, err)
		r.recordErr(kerr)
		r.log.Error("delete course failed", "id", id, "error", err)
		return kerr
	}
	r.log.Info("course delete requested", "id", id)
	return nil
}

// Toggle flips name in the selection and reports whether it is now selected.
func (r *Reconciler) Toggle(name string) bool {
	r.mu.Lock()
	on := r.selection.Toggle(name)
	r.mu.Unlock()
	r.notify()
	return on
}

func (r *Reconciler) Selected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selection.Names()
}

// SelectedRecords returns copies of the cached records whose course is selected,
// in cache order.
func (r *Reconciler) SelectedRecords() []*knowledge.CourseRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*knowledge.CourseRecord, 0, r.selection.Len())
	for _, rec := range r.records {
		if r.selection.Contains(rec.Course) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (r *Reconciler) Records() []*knowledge.CourseRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.records)
}

// SetEditing marks course as open in the editor; blank clears it.
func (r *Reconciler) SetEditing(course string) {
	r.mu.Lock()
	r.editing = strings.TrimSpace(course)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) Editing() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.editing
}

func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads > 0
}

// Err is the last operation error, cleared by a successful Load.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{
		Records:  cloneAll(r.records),
		Selected: r.selection.Names(),
		Editing:  r.editing,
		Loading:  r.loads > 0,
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

func (r *Reconciler) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

func (r *Reconciler) acquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[key]; busy {
		return false
	}
	r.inflight[key] = struct{}{}
	return true
}

func (r *Reconciler) release(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

func (r *Reconciler) recordErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (r *Reconciler) sortLocked() {
	slices.SortStableFunc(r.records, func(a, b *knowledge.CourseRecord) int {
		if c := r.coll.CompareString(a.Course, b.Course); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func (r *Reconciler) indexByIDLocked(id int64) int {
	return slices.IndexFunc(r.records, func(rec *knowledge.CourseRecord) bool { return rec.ID == id })
}

func (r *Reconciler) indexByCourseLocked(course string) int {
	return slices.IndexFunc(r.records, func(rec *knowledge.CourseRecord) bool { return rec.Course == course })
}

func normalized(rec *knowledge.CourseRecord) *knowledge.CourseRecord {
	out := rec.Clone()
	out.NormalizeImage()
	return out
}

func cloneAll(in []*knowledge.CourseRecord) []*knowledge.CourseRecord {
	out := make([]*knowledge.CourseRecord, len(in))
	for i, rec := range in {
		out[i] = rec.Clone()
	}
	return out
}
