// Package memory provides an in-memory implementation of the engine's
// storage contract used for tests and ephemeral environments. Objects are
// kept as flat records; template links are kept per referring object.
package memory

import (
	"context"
	"encoding/json"
	"epoccore/pkg/domain"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain storage interface.
var _ domain.Storage = (*Store)(nil)

type (
	// Object aliases domain.Object.
	Object = domain.Object
	// ObjType aliases domain.ObjType.
	ObjType = domain.ObjType
	// Record aliases domain.Record, the persisted form of an object.
	Record = domain.Record
)

// TemplateRef identifies a linked template.
type TemplateRef struct {
	Type ObjType `json:"type"`
	UID  int     `json:"uid"`
}

type memoryState struct {
	records map[ObjType]map[int]Record
	links   map[int]map[TemplateRef]struct{}
	nextUID int
}

// Snapshot captures a point-in-time copy of the store state.
type Snapshot struct {
	Records       map[ObjType]map[int]Record `json:"records"`
	TemplateLinks map[int][]TemplateRef      `json:"template_links"`
	NextUID       int                        `json:"next_uid"`
}

func newMemoryState() memoryState {
	return memoryState{
		records: make(map[ObjType]map[int]Record),
		links:   make(map[int]map[TemplateRef]struct{}),
		nextUID: 1,
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Records:       make(map[ObjType]map[int]Record, len(state.records)),
		TemplateLinks: make(map[int][]TemplateRef, len(state.links)),
		NextUID:       state.nextUID,
	}
	for t, recs := range state.records {
		out := make(map[int]Record, len(recs))
		for uid, rec := range recs {
			out[uid] = cloneRecord(rec)
		}
		s.Records[t] = out
	}
	for parent, refs := range state.links {
		list := make([]TemplateRef, 0, len(refs))
		for ref := range refs {
			list = append(list, ref)
		}
		sortRefs(list)
		s.TemplateLinks[parent] = list
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.nextUID = s.NextUID
	for t, recs := range s.Records {
		out := make(map[int]Record, len(recs))
		for uid, rec := range recs {
			out[uid] = cloneRecord(rec)
		}
		state.records[t] = out
	}
	for parent, refs := range s.TemplateLinks {
		set := make(map[TemplateRef]struct{}, len(refs))
		for _, ref := range refs {
			set[ref] = struct{}{}
		}
		state.links[parent] = set
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older builds or by hand:
// unknown kinds and mismatched keys are dropped, dangling child references
// and template links are filtered, and the uid sequence is moved past every
// stored uid.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Records == nil {
		snapshot.Records = map[ObjType]map[int]Record{}
	}
	if snapshot.TemplateLinks == nil {
		snapshot.TemplateLinks = map[int][]TemplateRef{}
	}
	maxUID := 0
	for t, recs := range snapshot.Records {
		if !t.Valid() || recs == nil {
			delete(snapshot.Records, t)
			continue
		}
		for uid, rec := range recs {
			if uid <= 0 || rec.UID != uid || rec.Type != t {
				delete(recs, uid)
				continue
			}
			if uid > maxUID {
				maxUID = uid
			}
		}
	}
	exists := func(t ObjType, uid int) bool {
		_, ok := snapshot.Records[t][uid]
		return ok
	}
	for t, recs := range snapshot.Records {
		for uid, rec := range recs {
			children, changed := filterRefs(rec.Children, exists)
			if changed {
				rec.Children = children
				snapshot.Records[t][uid] = rec
			}
		}
	}
	for parent, refs := range snapshot.TemplateLinks {
		kept := refs[:0:0]
		for _, ref := range refs {
			if exists(ref.Type, ref.UID) {
				kept = append(kept, ref)
			}
		}
		if parent <= 0 || len(kept) == 0 {
			delete(snapshot.TemplateLinks, parent)
			continue
		}
		snapshot.TemplateLinks[parent] = dedupeRefs(kept)
	}
	if snapshot.NextUID <= maxUID {
		snapshot.NextUID = maxUID + 1
	}
	return snapshot
}

func filterRefs(refs []domain.Ref, exists func(ObjType, int) bool) ([]domain.Ref, bool) {
	if len(refs) == 0 {
		return refs, false
	}
	out := make([]domain.Ref, 0, len(refs))
	for _, r := range refs {
		if exists(r.Type, r.UID) {
			out = append(out, r)
		}
	}
	return out, len(out) != len(refs)
}

func dedupeRefs(refs []TemplateRef) []TemplateRef {
	seen := make(map[TemplateRef]struct{}, len(refs))
	out := make([]TemplateRef, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sortRefs(out)
	return out
}

func sortRefs(refs []TemplateRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].UID < refs[j].UID
	})
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.nextUID = s.nextUID
	for t, recs := range s.records {
		out := make(map[int]Record, len(recs))
		for uid, rec := range recs {
			out[uid] = rec
		}
		cloned.records[t] = out
	}
	for parent, refs := range s.links {
		set := make(map[TemplateRef]struct{}, len(refs))
		for ref := range refs {
			set[ref] = struct{}{}
		}
		cloned.links[parent] = set
	}
	return cloned
}

func cloneRecord(rec Record) Record {
	cp := rec
	cp.Data = append(json.RawMessage(nil), rec.Data...)
	cp.Children = append([]domain.Ref(nil), rec.Children...)
	if rec.Links != nil {
		cp.Links = make(map[string][]domain.Ref, len(rec.Links))
		for name, refs := range rec.Links {
			cp.Links[name] = append([]domain.Ref(nil), refs...)
		}
	}
	return cp
}

func (s *memoryState) get(t ObjType, uid int) (Record, bool) {
	rec, ok := s.records[t][uid]
	return rec, ok
}

func (s *memoryState) put(rec Record) {
	recs, ok := s.records[rec.Type]
	if !ok {
		recs = make(map[int]Record)
		s.records[rec.Type] = recs
	}
	recs[rec.UID] = rec
}

// Store provides an in-memory transactional store for engine objects.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// transaction applies mutations to a private copy of the state; the store
// swaps it in only when every step succeeded.
type transaction struct {
	state   memoryState
	now     time.Time
	visited map[Object]struct{}
	undo    []func()
}

func (s *Store) runInTransaction(ctx context.Context, fn func(tx *transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{
		state:   s.state.clone(),
		now:     s.nowFn(),
		visited: make(map[Object]struct{}),
	}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	s.state = tx.state
	return nil
}

// Load implements domain.Storage.
func (s *Store) Load(ctx context.Context, obj Object, r domain.Resolver) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := obj.Meta()
	s.mu.RLock()
	rec, ok := s.state.get(obj.Type(), b.UID)
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound{Type: obj.Type(), UID: b.UID}
	}
	return domain.DecodeRecord(ctx, rec, obj, r)
}

// Save implements domain.Storage. Identities are assigned across the whole
// affected graph before any record is encoded so that every reference
// carries its final key.
func (s *Store) Save(ctx context.Context, obj Object, saveChildren bool) error {
	return s.runInTransaction(ctx, func(tx *transaction) error {
		var order []Object
		if err := tx.assign(obj, saveChildren, &order); err != nil {
			return err
		}
		for _, o := range order {
			rec, err := domain.EncodeRecord(o, domain.UIDKey)
			if err != nil {
				return err
			}
			tx.state.put(rec)
		}
		return nil
	})
}

func (tx *transaction) assign(obj Object, withChildren bool, order *[]Object) error {
	if _, seen := tx.visited[obj]; seen {
		return nil
	}
	tx.visited[obj] = struct{}{}
	b := obj.Meta()
	if b.Broken {
		return fmt.Errorf("save %s %q: broken placeholders cannot be saved", obj.Type(), b.Shortname)
	}
	tx.stamp(obj)
	*order = append(*order, obj)
	for _, child := range domain.Children(obj) {
		cb := child.Meta()
		if !withChildren && cb.UID != domain.UIDNew {
			continue
		}
		if !cb.Template && cb.ParentUID != b.UID {
			prev := cb.ParentUID
			tx.undo = append(tx.undo, func() { cb.ParentUID = prev })
			cb.ParentUID = b.UID
		}
		if err := tx.assign(child, true, order); err != nil {
			return err
		}
	}
	for _, e := range domain.Edges(obj) {
		if domain.IsNil(e.Target) || e.Target.Meta().Broken || e.Target.Meta().UID != domain.UIDNew {
			continue
		}
		if err := tx.assign(e.Target, true, order); err != nil {
			return fmt.Errorf("save %s link of %s %q: %w", e.Name, obj.Type(), b.Shortname, err)
		}
	}
	return nil
}

// stamp assigns a uid to new objects and refreshes timestamps.
func (tx *transaction) stamp(obj Object) {
	b := obj.Meta()
	prevUID, prevCreated, prevModified := b.UID, b.Created, b.Modified
	tx.undo = append(tx.undo, func() {
		b.UID, b.Created, b.Modified = prevUID, prevCreated, prevModified
	})
	if b.UID == domain.UIDNew {
		b.UID = tx.state.nextUID
		tx.state.nextUID++
		b.Created = tx.now
	}
	b.Modified = tx.now
}

// Delete implements domain.Storage. Owned children that are templates are
// shared with other parents and survive a recursive delete.
func (s *Store) Delete(ctx context.Context, obj Object, deleteChildren bool) error {
	return s.runInTransaction(ctx, func(tx *transaction) error {
		return tx.delete(obj.Type(), obj.Meta().UID, deleteChildren)
	})
}

func (tx *transaction) delete(t ObjType, uid int, withChildren bool) error {
	rec, ok := tx.state.get(t, uid)
	if !ok {
		return domain.ErrNotFound{Type: t, UID: uid}
	}
	if withChildren {
		for _, ref := range rec.Children {
			child, ok := tx.state.get(ref.Type, ref.UID)
			if !ok || isTemplateRecord(child) {
				continue
			}
			if err := tx.delete(ref.Type, ref.UID, true); err != nil {
				return err
			}
		}
	}
	delete(tx.state.records[t], uid)
	delete(tx.state.links, uid)
	gone := TemplateRef{Type: t, UID: uid}
	for parent, refs := range tx.state.links {
		delete(refs, gone)
		if len(refs) == 0 {
			delete(tx.state.links, parent)
		}
	}
	return nil
}

func isTemplateRecord(rec Record) bool {
	var flags struct {
		Template bool `json:"template"`
	}
	if err := json.Unmarshal(rec.Data, &flags); err != nil {
		return false
	}
	return flags.Template
}

// TemplateUsedByOther implements domain.Storage.
func (s *Store) TemplateUsedByOther(ctx context.Context, excludeParentUID, uid int, t ObjType) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ref := TemplateRef{Type: t, UID: uid}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for parent, refs := range s.state.links {
		if parent == excludeParentUID {
			continue
		}
		if _, ok := refs[ref]; ok {
			return true, nil
		}
	}
	return false, nil
}

// LinkTemplate implements domain.Storage.
func (s *Store) LinkTemplate(ctx context.Context, parentUID int, obj Object) error {
	return s.runInTransaction(ctx, func(tx *transaction) error {
		uid := obj.Meta().UID
		if parentUID <= 0 || uid <= 0 {
			return fmt.Errorf("link template %s %d to %d: both sides must be saved", obj.Type(), uid, parentUID)
		}
		if _, ok := tx.state.get(obj.Type(), uid); !ok {
			return domain.ErrNotFound{Type: obj.Type(), UID: uid}
		}
		refs, ok := tx.state.links[parentUID]
		if !ok {
			refs = make(map[TemplateRef]struct{})
			tx.state.links[parentUID] = refs
		}
		refs[TemplateRef{Type: obj.Type(), UID: uid}] = struct{}{}
		return nil
	})
}

// UnlinkTemplate implements domain.Storage. Unlinking an absent link is a no-op.
func (s *Store) UnlinkTemplate(ctx context.Context, parentUID, uid int, t ObjType) error {
	return s.runInTransaction(ctx, func(tx *transaction) error {
		refs, ok := tx.state.links[parentUID]
		if !ok {
			return nil
		}
		delete(refs, TemplateRef{Type: t, UID: uid})
		if len(refs) == 0 {
			delete(tx.state.links, parentUID)
		}
		return nil
	})
}

// TemplateUIDs implements domain.Storage.
func (s *Store) TemplateUIDs(ctx context.Context, t ObjType) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for uid, rec := range s.state.records[t] {
		if isTemplateRecord(rec) {
			out = append(out, uid)
		}
	}
	sort.Ints(out)
	return out, nil
}

// UIDs lists the stored uids of kind t in ascending order.
func (s *Store) UIDs(ctx context.Context, t ObjType) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.state.records[t]))
	for uid := range s.state.records[t] {
		out = append(out, uid)
	}
	sort.Ints(out)
	return out, nil
}

// Record returns a copy of the stored record for (t, uid).
func (s *Store) Record(t ObjType, uid int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.get(t, uid)
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// TemplateLinks returns the templates linked from parentUID.
func (s *Store) TemplateLinks(parentUID int) []TemplateRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TemplateRef, 0, len(s.state.links[parentUID]))
	for ref := range s.state.links[parentUID] {
		out = append(out, ref)
	}
	sortRefs(out)
	return out
}
