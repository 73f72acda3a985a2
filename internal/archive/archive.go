// Package archive exports object subtrees to blob storage and imports them
// back into a document. An archive is a self-contained JSON file: every
// object is keyed by an archive-local number, links leaving the exported
// subtree are broken and templates it links are carried along so the
// importing document can match them against its own registry.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"epoccore/internal/blob"
	"epoccore/pkg/domain"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// Format identifies EPOC archives.
	Format = "epoc-archive"
	// Version is the archive layout version written by Encode.
	Version = 1
	// ContentType is stored with every archive blob.
	ContentType = "application/json"
)

// Archive is the serialized form of one exported subtree.
type Archive struct {
	Format     string          `json:"format" jsonschema:"const=epoc-archive"`
	Version    int             `json:"version" jsonschema:"minimum=1"`
	ExportedAt time.Time       `json:"exported_at"`
	Root       domain.Record   `json:"root"`
	Objects    []domain.Record `json:"objects,omitempty" jsonschema:"description=Descendants owned by the root"`
	Templates  []domain.Record `json:"templates,omitempty" jsonschema:"description=Objects reached through links from outside the root subtree"`
}

var nowFn = func() time.Time { return time.Now().UTC() }

// Build flattens obj into an Archive. obj is normally the result of
// Document.Extract so that every non-template link stays inside it.
func Build(obj domain.Object) (Archive, error) {
	if domain.IsNil(obj) {
		return Archive{}, errors.New("archive: nil object")
	}
	keys := make(map[domain.Object]int)
	var owned, linked []domain.Object
	assign := func(root domain.Object, out *[]domain.Object) {
		domain.Walk(root, func(o domain.Object) bool {
			if _, ok := keys[o]; ok {
				return false
			}
			keys[o] = len(keys) + 1
			*out = append(*out, o)
			return true
		})
	}
	assign(obj, &owned)
	pending := append([]domain.Object(nil), owned...)
	for len(pending) > 0 {
		o := pending[0]
		pending = pending[1:]
		for _, e := range domain.Edges(o) {
			if domain.IsNil(e.Target) || e.Kind() == domain.LinkBroken {
				continue
			}
			if _, ok := keys[e.Target]; ok {
				continue
			}
			start := len(linked)
			assign(e.Target, &linked)
			pending = append(pending, linked[start:]...)
		}
	}

	key := func(o domain.Object) int { return keys[o] }
	encode := func(objs []domain.Object) ([]domain.Record, error) {
		recs := make([]domain.Record, 0, len(objs))
		for _, o := range objs {
			rec, err := domain.EncodeRecord(o, key)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		return recs, nil
	}
	recs, err := encode(owned)
	if err != nil {
		return Archive{}, err
	}
	templates, err := encode(linked)
	if err != nil {
		return Archive{}, err
	}
	return Archive{
		Format:     Format,
		Version:    Version,
		ExportedAt: nowFn(),
		Root:       recs[0],
		Objects:    recs[1:],
		Templates:  templates,
	}, nil
}

// Restore rebuilds the object graph held by a. Every restored object is
// new: uids and parent uids are cleared so that a later save assigns fresh
// identities. Links to keys missing from the archive come back broken.
func Restore(ctx context.Context, a Archive) (domain.Object, error) {
	if a.Format != Format {
		return nil, fmt.Errorf("archive: unexpected format %q", a.Format)
	}
	if a.Version < 1 || a.Version > Version {
		return nil, fmt.Errorf("archive: unsupported version %d", a.Version)
	}
	r := &resolver{
		recs: make(map[int]domain.Record, 1+len(a.Objects)+len(a.Templates)),
		objs: make(map[int]domain.Object),
	}
	for _, rec := range append(append([]domain.Record{a.Root}, a.Objects...), a.Templates...) {
		if rec.UID <= 0 {
			return nil, fmt.Errorf("archive: invalid key %d for %s", rec.UID, rec.Type)
		}
		if _, dup := r.recs[rec.UID]; dup {
			return nil, fmt.Errorf("archive: duplicate key %d", rec.UID)
		}
		if !rec.Type.Valid() {
			return nil, fmt.Errorf("archive: unknown object type %q", rec.Type)
		}
		r.recs[rec.UID] = rec
	}
	root, err := r.Resolve(ctx, a.Root.Type, a.Root.UID)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	for _, o := range r.objs {
		b := o.Meta()
		b.UID = domain.UIDNew
		b.ParentUID = 0
	}
	return root, nil
}

type resolver struct {
	recs map[int]domain.Record
	objs map[int]domain.Object
}

func (r *resolver) Resolve(ctx context.Context, t domain.ObjType, key int) (domain.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if obj, ok := r.objs[key]; ok {
		if obj.Type() != t {
			return nil, fmt.Errorf("key %d is a %s, not a %s", key, obj.Type(), t)
		}
		return obj, nil
	}
	rec, ok := r.recs[key]
	if !ok {
		return nil, domain.ErrNotFound{Type: t, UID: key}
	}
	if rec.Type != t {
		return nil, fmt.Errorf("key %d is a %s, not a %s", key, rec.Type, t)
	}
	obj := domain.NewBlank(t, key)
	r.objs[key] = obj
	if err := domain.DecodeRecord(ctx, rec, obj, r); err != nil {
		return nil, err
	}
	return obj, nil
}

// Encode writes the extract of obj from doc to w as indented JSON.
func Encode(w io.Writer, doc *domain.Document, obj domain.Object) (Archive, error) {
	a, err := Build(doc.Extract(obj))
	if err != nil {
		return Archive{}, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return Archive{}, fmt.Errorf("archive: encode: %w", err)
	}
	return a, nil
}

// Decode reads an archive from r and restores its object graph.
func Decode(ctx context.Context, r io.Reader) (domain.Object, error) {
	var a Archive
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("archive: decode: %w", err)
	}
	return Restore(ctx, a)
}

// Export extracts obj from doc and writes it to store under key. Existing
// keys are never overwritten.
func Export(ctx context.Context, store blob.Store, key string, doc *domain.Document, obj domain.Object) (blob.Info, error) {
	var buf bytes.Buffer
	if _, err := Encode(&buf, doc, obj); err != nil {
		return blob.Info{}, err
	}
	meta := map[string]string{
		"epoc-format":    Format,
		"epoc-version":   fmt.Sprint(Version),
		"epoc-root-type": string(obj.Type()),
	}
	info, err := store.Put(ctx, key, bytes.NewReader(buf.Bytes()), blob.PutOptions{ContentType: ContentType, Metadata: meta})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive: store %s: %w", key, err)
	}
	return info, nil
}

// Fetch reads and restores the archive stored under key.
func Fetch(ctx context.Context, store blob.Store, key string) (domain.Object, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive: fetch %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	return Decode(ctx, rc)
}

// Import reads the archive at key and adopts its root into doc under
// parent (the document root when nil). It returns the adopted object and
// the number of links repaired.
func Import(ctx context.Context, store blob.Store, key string, doc *domain.Document, parent domain.Object) (domain.Object, int, error) {
	obj, err := Fetch(ctx, store, key)
	if err != nil {
		return nil, 0, err
	}
	repaired, err := doc.Import(obj, parent)
	if err != nil {
		return nil, 0, err
	}
	return obj, repaired, nil
}
