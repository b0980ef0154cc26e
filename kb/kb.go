package kb

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventTrackCreated EventType = iota
	EventTrackUpdated
	EventTrackRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTrackCreated:
		return "created"
	case EventTrackUpdated:
		return "updated"
	case EventTrackRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when a track's rendering changes.
type Event struct {
	Type     EventType
	Identity string
	Category model.Category
	Position model.Geodetic
	Time     time.Time
}

// TrackRecord is the store's bookkeeping for one track identity.
type TrackRecord struct {
	Point   *scene.Entity
	Trail   *scene.Entity
	History *History
}

// TrackView is a read-only copy of a TrackRecord.
type TrackView struct {
	Point   *scene.Entity
	Trail   *scene.Entity
	History []HistoryEntry
}

// KnowledgeBase is the entity store. It maps track identities to their
// rendered point and trail handles and owns every create and remove against
// the scene engine. All mutation happens inside Batch.
type KnowledgeBase struct {
	mu sync.Mutex

	engine     scene.Engine
	historyLen int
	tracks     map[string]*TrackRecord

	subs    map[int]func(Event)
	nextSub int
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithHistoryLength sets the per-track trail capacity.
func WithHistoryLength(n int) Option {
	return func(kb *KnowledgeBase) {
		if n > 0 {
			kb.historyLen = n
		}
	}
}

// NewKnowledgeBase constructs an empty store over engine.
func NewKnowledgeBase(engine scene.Engine, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		engine:     engine,
		historyLen: DefaultHistoryLength,
		tracks:     make(map[string]*TrackRecord),
		subs:       make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Engine returns the scene engine the store writes to.
func (kb *KnowledgeBase) Engine() scene.Engine { return kb.engine }

// HistoryLength returns the per-track trail capacity.
func (kb *KnowledgeBase) HistoryLength() int { return kb.historyLen }

// Batch runs fn with exclusive access to the store. A reconciliation pass is
// one Batch, so passes never interleave. Events raised by fn are delivered to
// subscribers after the lock is released.
func (kb *KnowledgeBase) Batch(fn func(tx *Tx)) {
	events, subs := kb.runLocked(fn)

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
}

func (kb *KnowledgeBase) runLocked(fn func(tx *Tx)) ([]Event, []func(Event)) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	tx := &Tx{kb: kb}
	fn(tx)
	if len(tx.events) == 0 || len(kb.subs) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return tx.events, subs
}

// TrackIDs returns the identities currently held, sorted.
func (kb *KnowledgeBase) TrackIDs() []string {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.trackIDsLocked()
}

func (kb *KnowledgeBase) trackIDsLocked() []string {
	ids := make([]string, 0, len(kb.tracks))
	for id := range kb.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Track returns a copy of the bookkeeping for id.
func (kb *KnowledgeBase) Track(id string) (TrackView, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	rec, ok := kb.tracks[id]
	if !ok {
		return TrackView{}, false
	}
	return TrackView{Point: rec.Point, Trail: rec.Trail, History: rec.History.Entries()}, true
}

// History returns a copy of the trail samples held for id, oldest first.
func (kb *KnowledgeBase) History(id string) []HistoryEntry {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if rec, ok := kb.tracks[id]; ok {
		return rec.History.Entries()
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// Tx is the store as seen from inside Batch. It must not be retained after
// Batch returns.
type Tx struct {
	kb     *KnowledgeBase
	events []Event
}

// TrackIDs returns the identities currently held, sorted.
func (tx *Tx) TrackIDs() []string { return tx.kb.trackIDsLocked() }

// HasTrack reports whether id is held.
func (tx *Tx) HasTrack(id string) bool {
	_, ok := tx.kb.tracks[id]
	return ok
}

// EachTrack calls fn for every held identity in sorted order.
func (tx *Tx) EachTrack(fn func(id string, rec *TrackRecord)) {
	for _, id := range tx.kb.trackIDsLocked() {
		fn(id, tx.kb.tracks[id])
	}
}

// ReplaceTrackPoint removes the current point entity for id, if any, and
// creates a new one from spec.
func (tx *Tx) ReplaceTrackPoint(id string, spec scene.Spec) *scene.Entity {
	rec, ok := tx.kb.tracks[id]
	if !ok {
		rec = &TrackRecord{History: NewHistory(tx.kb.historyLen)}
		tx.kb.tracks[id] = rec
	}
	if rec.Point != nil {
		tx.kb.engine.RemoveEntity(rec.Point)
	}
	rec.Point = tx.kb.engine.AddEntity(spec)

	typ := EventTrackUpdated
	if !ok {
		typ = EventTrackCreated
	}
	tx.emit(Event{Type: typ, Identity: id, Category: spec.Category, Position: spec.Position, Time: spec.Timestamp})
	return rec.Point
}

// AppendHistory adds a trail sample for id and returns the resulting
// history. It reports false when id is not held.
func (tx *Tx) AppendHistory(id string, e HistoryEntry) (*History, bool) {
	rec, ok := tx.kb.tracks[id]
	if !ok {
		return nil, false
	}
	rec.History.Append(e)
	return rec.History, true
}

// ReplaceTrackTrail swaps the trail polyline for id. It returns nil when id
// is not held.
func (tx *Tx) ReplaceTrackTrail(id string, spec scene.Spec) *scene.Entity {
	rec, ok := tx.kb.tracks[id]
	if !ok {
		return nil
	}
	if rec.Trail != nil {
		tx.kb.engine.RemoveEntity(rec.Trail)
	}
	rec.Trail = tx.kb.engine.AddEntity(spec)
	return rec.Trail
}

// RemoveTrackTrail removes the trail polyline for id, if any.
func (tx *Tx) RemoveTrackTrail(id string) {
	rec, ok := tx.kb.tracks[id]
	if !ok || rec.Trail == nil {
		return
	}
	tx.kb.engine.RemoveEntity(rec.Trail)
	rec.Trail = nil
}

// RemoveTrack removes the point, the trail and the history of id.
func (tx *Tx) RemoveTrack(id string) bool {
	rec, ok := tx.kb.tracks[id]
	if !ok {
		return false
	}
	ev := Event{Type: EventTrackRemoved, Identity: id}
	if rec.Point != nil {
		ev.Category = rec.Point.Category()
		ev.Position = rec.Point.Position()
		tx.kb.engine.RemoveEntity(rec.Point)
	}
	if rec.Trail != nil {
		tx.kb.engine.RemoveEntity(rec.Trail)
	}
	delete(tx.kb.tracks, id)
	tx.emit(ev)
	return true
}

// Add creates an untracked entity, such as a detection point or a site
// marker.
func (tx *Tx) Add(spec scene.Spec) *scene.Entity {
	return tx.kb.engine.AddEntity(spec)
}

// Remove removes an untracked entity.
func (tx *Tx) Remove(e *scene.Entity) bool {
	return tx.kb.engine.RemoveEntity(e)
}

// Entities lists every entity in the scene.
func (tx *Tx) Entities() []*scene.Entity {
	return tx.kb.engine.ListEntities()
}

// RemoveCategory removes every entity tagged c and returns how many went.
func (tx *Tx) RemoveCategory(c model.Category) int {
	n := 0
	for _, e := range tx.kb.engine.ListEntities() {
		if e.Category() == c && tx.kb.engine.RemoveEntity(e) {
			n++
		}
	}
	return n
}

// NameExists reports whether any entity, in any category, has the given
// display name.
func (tx *Tx) NameExists(name string) bool {
	for _, e := range tx.kb.engine.ListEntities() {
		if e.Name() == name {
			return true
		}
	}
	return false
}

func (tx *Tx) emit(ev Event) {
	tx.events = append(tx.events, ev)
}
