package domain

import (
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// DeleteQueue collects persisted objects awaiting physical deletion,
// deduplicated by (kind, uid). Unsaved and broken objects are ignored
// since storage holds nothing for them.
type DeleteQueue struct {
	uids    map[ObjType]*roaring64.Bitmap
	objects map[ObjType]map[uint64]Object
}

// NewDeleteQueue constructs an empty queue.
func NewDeleteQueue() *DeleteQueue {
	return &DeleteQueue{
		uids:    make(map[ObjType]*roaring64.Bitmap),
		objects: make(map[ObjType]map[uint64]Object),
	}
}

// Push enqueues obj. It reports whether obj was newly queued.
func (q *DeleteQueue) Push(obj Object) bool {
	if IsNil(obj) {
		return false
	}
	b := obj.Meta()
	if b.UID <= 0 || b.Broken {
		return false
	}
	t := obj.Type()
	bm, ok := q.uids[t]
	if !ok {
		bm = roaring64.New()
		q.uids[t] = bm
		q.objects[t] = make(map[uint64]Object)
	}
	id := uint64(b.UID)
	if !bm.CheckedAdd(id) {
		return false
	}
	q.objects[t][id] = obj
	return true
}

// Contains reports whether (t, uid) is queued.
func (q *DeleteQueue) Contains(t ObjType, uid int) bool {
	bm, ok := q.uids[t]
	return ok && uid > 0 && bm.Contains(uint64(uid))
}

// Forget drops (t, uid) from the queue, typically because the object was
// re-attached before the save.
func (q *DeleteQueue) Forget(t ObjType, uid int) {
	bm, ok := q.uids[t]
	if !ok || uid <= 0 {
		return
	}
	bm.Remove(uint64(uid))
	delete(q.objects[t], uint64(uid))
}

// Len returns the number of queued objects.
func (q *DeleteQueue) Len() int {
	n := 0
	for _, bm := range q.uids {
		n += int(bm.GetCardinality())
	}
	return n
}

// Drain returns the queued objects in kind order, ascending uid within a
// kind, and empties the queue.
func (q *DeleteQueue) Drain() []Object {
	var out []Object
	for _, t := range objTypes {
		bm, ok := q.uids[t]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, q.objects[t][it.Next()])
		}
	}
	q.uids = make(map[ObjType]*roaring64.Bitmap)
	q.objects = make(map[ObjType]map[uint64]Object)
	return out
}

// UIDSet is a per-kind set of persisted uids.
type UIDSet map[ObjType]*roaring64.Bitmap

// Add inserts (t, uid); non-positive uids are ignored.
func (s UIDSet) Add(t ObjType, uid int) {
	if uid <= 0 {
		return
	}
	bm, ok := s[t]
	if !ok {
		bm = roaring64.New()
		s[t] = bm
	}
	bm.Add(uint64(uid))
}

// Contains reports membership.
func (s UIDSet) Contains(t ObjType, uid int) bool {
	bm, ok := s[t]
	return ok && uid > 0 && bm.Contains(uint64(uid))
}

// Difference returns the members of s missing from other.
func (s UIDSet) Difference(other UIDSet) UIDSet {
	out := make(UIDSet)
	for t, bm := range s {
		diff := bm.Clone()
		if o, ok := other[t]; ok {
			diff.AndNot(o)
		}
		if !diff.IsEmpty() {
			out[t] = diff
		}
	}
	return out
}

// UIDs returns the uids of kind t in ascending order.
func (s UIDSet) UIDs(t ObjType) []int {
	bm, ok := s[t]
	if !ok {
		return nil
	}
	out := make([]int, 0, bm.GetCardinality())
	for _, v := range bm.ToArray() {
		out = append(out, int(v))
	}
	return out
}

// Types returns the kinds present in the set in canonical order.
func (s UIDSet) Types() []ObjType {
	var out []ObjType
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return typeRank(out[i]) < typeRank(out[j]) })
	return out
}

func typeRank(t ObjType) int {
	for i, known := range objTypes {
		if known == t {
			return i
		}
	}
	return len(objTypes)
}
