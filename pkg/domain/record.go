package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Ref points at another record by kind and key. Broken placeholders carry
// their own payload in Stub so they can be repaired after a reload.
type Ref struct {
	Type ObjType `json:"type"`
	UID  int     `json:"uid"`
	Stub *Record `json:"stub,omitempty"`
}

// Record is the flat, persistable form of one object: its own fields, the
// keys of its owned children in sibling order, and its links by name.
type Record struct {
	Type     ObjType          `json:"type"`
	UID      int              `json:"uid"`
	Data     json.RawMessage  `json:"data"`
	Children []Ref            `json:"children,omitempty"`
	Links    map[string][]Ref `json:"links,omitempty"`
}

// KeyFunc returns the key a referenced object is stored under.
type KeyFunc func(Object) int

// UIDKey keys objects by their persisted uid.
func UIDKey(o Object) int { return o.Meta().UID }

// EncodeRecord flattens obj. Children and non-broken link targets are
// referenced through key; broken targets are embedded as stubs.
func EncodeRecord(obj Object, key KeyFunc) (Record, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", obj.Type(), err)
	}
	rec := Record{Type: obj.Type(), UID: key(obj), Data: data}
	for _, child := range Children(obj) {
		rec.Children = append(rec.Children, Ref{Type: child.Type(), UID: key(child)})
	}
	for _, e := range Edges(obj) {
		if IsNil(e.Target) {
			continue
		}
		ref := Ref{Type: e.TargetType, UID: key(e.Target)}
		if e.Kind() == LinkBroken {
			stub, err := encodeStub(e.Target)
			if err != nil {
				return Record{}, err
			}
			ref = Ref{Type: e.TargetType, UID: UIDBroken, Stub: &stub}
		}
		if rec.Links == nil {
			rec.Links = make(map[string][]Ref)
		}
		rec.Links[e.Name] = append(rec.Links[e.Name], ref)
	}
	return rec, nil
}

func encodeStub(obj Object) (Record, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Record{}, fmt.Errorf("encode broken %s: %w", obj.Type(), err)
	}
	return Record{Type: obj.Type(), UID: UIDBroken, Data: data}, nil
}

// DecodeRecord fills obj from rec. obj must be a blank instance of
// rec.Type; children and link targets are obtained through r.
func DecodeRecord(ctx context.Context, rec Record, obj Object, r Resolver) error {
	if obj.Type() != rec.Type {
		return fmt.Errorf("decode: record of kind %s into %s", rec.Type, obj.Type())
	}
	if err := json.Unmarshal(rec.Data, obj); err != nil {
		return fmt.Errorf("decode %s %d: %w", rec.Type, rec.UID, err)
	}
	clearRemoved(obj)
	for _, ref := range rec.Children {
		child, err := r.Resolve(ctx, ref.Type, ref.UID)
		if err != nil {
			return fmt.Errorf("decode %s %d child: %w", rec.Type, rec.UID, err)
		}
		if err := AttachChild(obj, child); err != nil {
			return fmt.Errorf("decode %s %d: %w", rec.Type, rec.UID, err)
		}
	}
	for name, refs := range rec.Links {
		targets := make([]Object, 0, len(refs))
		for _, ref := range refs {
			target, err := resolveRef(ctx, ref, r)
			if IsNotFound(err) {
				target, err = NewBlank(ref.Type, UIDBroken), nil
				target.Meta().Broken = true
			}
			if err != nil {
				return fmt.Errorf("decode %s %d link %s: %w", rec.Type, rec.UID, name, err)
			}
			targets = append(targets, target)
		}
		if !SetLink(obj, name, targets...) {
			return fmt.Errorf("decode %s %d: unknown link %q", rec.Type, rec.UID, name)
		}
	}
	return nil
}

func resolveRef(ctx context.Context, ref Ref, r Resolver) (Object, error) {
	if ref.Stub == nil {
		return r.Resolve(ctx, ref.Type, ref.UID)
	}
	ph := NewBlank(ref.Type, UIDBroken)
	if err := json.Unmarshal(ref.Stub.Data, ph); err != nil {
		return nil, fmt.Errorf("decode broken %s: %w", ref.Type, err)
	}
	b := ph.Meta()
	b.UID = UIDBroken
	b.Broken = true
	b.Template = false
	return ph, nil
}
