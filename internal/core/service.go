// Package core wires the object-graph engine to storage, archive blobs,
// logging and metrics. Every flow a user can trigger (open, save, remove,
// replace, template, export, import) runs through Service so that it is
// serialised per document, traced, measured and logged the same way.
package core

import (
	"context"
	"epoccore/internal/archive"
	"epoccore/internal/blob"
	"epoccore/internal/ctxlog"
	"epoccore/pkg/domain"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoBlobStore is returned by archive flows on a service built without one.
var ErrNoBlobStore = errors.New("core: no blob store configured")

// Service runs document flows against one Storage. Documents are not safe
// for concurrent use on their own; Service serialises the calls it makes
// on each document.
type Service struct {
	store   Storage
	blobs   blob.Store
	engine  domain.EngineConfig
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time

	mu    sync.Mutex
	locks map[*domain.Document]*sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithBlobStore sets the archive store used by Export and Import.
func WithBlobStore(b blob.Store) Option { return func(s *Service) { s.blobs = b } }

// WithEngineConfig sets the engine switches given to new documents.
func WithEngineConfig(cfg domain.EngineConfig) Option { return func(s *Service) { s.engine = cfg } }

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock replaces the clock used to time operations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service over store.
func NewService(store Storage, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  domain.DefaultEngineConfig(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
		locks:   make(map[*domain.Document]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage.
func (s *Service) Store() Storage { return s.store }

// BlobStore returns the archive store, nil when none is configured.
func (s *Service) BlobStore() blob.Store { return s.blobs }

// Close releases the storage.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) lock(doc *domain.Document) func() {
	if doc == nil {
		return func() {}
	}
	s.mu.Lock()
	m, ok := s.locks[doc]
	if !ok {
		m = &sync.Mutex{}
		s.locks[doc] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Forget drops the lock kept for doc once the caller is done with it.
func (s *Service) Forget(doc *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, doc)
}

// run executes fn as the named operation: serialised on doc, traced,
// measured and logged with attrs.
func (s *Service) run(ctx context.Context, op string, doc *domain.Document, attrs []any, fn func(context.Context) error) error {
	unlock := s.lock(doc)
	defer unlock()
	ctx, span := s.tracer.Start(ctx, op)
	start := s.now()
	err := fn(ctx)
	elapsed := s.now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	logger := ctxlog.FromContext(ctx).With("op", op)
	if err != nil {
		logger.ErrorContext(ctx, "operation failed", append(attrs, "error", err, "duration", elapsed)...)
		return err
	}
	logger.DebugContext(ctx, "operation complete", append(attrs, "duration", elapsed)...)
	return nil
}

func objAttrs(obj domain.Object) []any {
	if domain.IsNil(obj) {
		return nil
	}
	return []any{"objtype", obj.Type(), "uid", obj.Meta().UID, "shortname", obj.Meta().Shortname}
}

func (s *Service) adopt(doc *domain.Document) *domain.Document {
	for _, r := range ServiceRules() {
		doc.Rules.Register(r)
	}
	return doc
}

// NewDocument returns an unsaved document around a fresh universe.
func (s *Service) NewDocument(shortname string) *domain.Document {
	return s.adopt(domain.NewDocument(domain.NewUniverse(shortname), s.engine))
}

// Open loads the universe uid with its templates.
func (s *Service) Open(ctx context.Context, uid int) (*domain.Document, error) {
	var doc *domain.Document
	err := s.run(ctx, "open", nil, []any{"objtype", domain.ObjUniverse, "uid", uid}, func(ctx context.Context) error {
		var err error
		doc, err = domain.Load(ctx, s.store, uid, s.engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.adopt(doc), nil
}

// Universes lists the uids of every saved universe.
func (s *Service) Universes(ctx context.Context) ([]int, error) {
	var uids []int
	err := s.run(ctx, "universes", nil, nil, func(ctx context.Context) error {
		var err error
		uids, err = s.store.UIDs(ctx, domain.ObjUniverse)
		return err
	})
	return uids, err
}

// Templates loads the persisted templates of kind t (every kind for ObjAll).
func (s *Service) Templates(ctx context.Context, t domain.ObjType) ([]domain.Object, error) {
	var out []domain.Object
	err := s.run(ctx, "templates", nil, []any{"objtype", t}, func(ctx context.Context) error {
		reg := domain.NewRegistry()
		if err := domain.NewLoader(s.store, reg).LoadTemplates(ctx); err != nil {
			return err
		}
		out = reg.List(t)
		return nil
	})
	return out, err
}

// Save validates and persists doc.
func (s *Service) Save(ctx context.Context, doc *domain.Document) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "save", doc, objAttrs(doc.Root), func(ctx context.Context) error {
		var err error
		res, err = doc.Save(ctx, s.store)
		return err
	})
	return res, err
}

// Validate evaluates the document rules over obj (the root when nil).
func (s *Service) Validate(ctx context.Context, doc *domain.Document, obj domain.Object) (domain.Result, error) {
	var res domain.Result
	target := obj
	if domain.IsNil(target) {
		target = doc.Root
	}
	err := s.run(ctx, "validate", doc, objAttrs(target), func(ctx context.Context) error {
		var err error
		res, err = doc.Validate(ctx, target)
		return err
	})
	return res, err
}

// Remove detaches child from parent; storage forgets it on the next save.
func (s *Service) Remove(ctx context.Context, doc *domain.Document, parent, child domain.Object) error {
	return s.run(ctx, "remove", doc, objAttrs(child), func(context.Context) error {
		return domain.DetachChild(parent, child)
	})
}

// Replace swaps old for revised throughout doc.
func (s *Service) Replace(ctx context.Context, doc *domain.Document, old, revised domain.Object) error {
	return s.run(ctx, "replace", doc, objAttrs(old), func(context.Context) error {
		return doc.ReplaceModified(old, revised)
	})
}

// Template registers obj's subtree as templates of doc. It reports whether
// obj was newly templated.
func (s *Service) Template(ctx context.Context, doc *domain.Document, obj domain.Object) (bool, error) {
	var ok bool
	err := s.run(ctx, "template", doc, objAttrs(obj), func(context.Context) error {
		if domain.IsNil(obj) {
			return errors.New("template: nil object")
		}
		ok = doc.Template(obj)
		return nil
	})
	return ok, err
}

// UnsetTemplate unregisters obj, re-parenting it under parentUID. Links
// that would be left pointing at the detached object are broken; their
// count is returned.
func (s *Service) UnsetTemplate(ctx context.Context, doc *domain.Document, obj domain.Object, parentUID int, recurse bool) (bool, int, error) {
	var (
		ok     bool
		broken int
	)
	err := s.run(ctx, "unset_template", doc, objAttrs(obj), func(ctx context.Context) error {
		if domain.IsNil(obj) {
			return errors.New("unset template: nil object")
		}
		ok, broken = doc.UnsetAsTemplate(obj, parentUID, recurse)
		if broken > 0 {
			ctxlog.FromContext(ctx).InfoContext(ctx, "broke links to untemplated object", "links", broken)
		}
		return nil
	})
	return ok, broken, err
}

// Export writes the extract of obj to the blob store under key.
func (s *Service) Export(ctx context.Context, doc *domain.Document, obj domain.Object, key string) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "export", doc, append(objAttrs(obj), "key", key), func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		var err error
		info, err = archive.Export(ctx, s.blobs, key, doc, obj)
		return err
	})
	return info, err
}

// Import adopts the archive at key into doc under parent (the root when
// nil). It returns the imported object and the number of links repaired.
func (s *Service) Import(ctx context.Context, doc *domain.Document, key string, parent domain.Object) (domain.Object, int, error) {
	var (
		obj      domain.Object
		repaired int
	)
	err := s.run(ctx, "import", doc, []any{"key", key}, func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		var err error
		obj, repaired, err = archive.Import(ctx, s.blobs, key, doc, parent)
		return err
	})
	return obj, repaired, err
}

// ImportUniverse turns a universe archive into a new, unsaved document.
// Templates it links are matched against the persisted templates first.
func (s *Service) ImportUniverse(ctx context.Context, key string) (*domain.Document, int, error) {
	var (
		doc      *domain.Document
		repaired int
	)
	err := s.run(ctx, "import", nil, []any{"key", key}, func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		obj, err := archive.Fetch(ctx, s.blobs, key)
		if err != nil {
			return err
		}
		u, ok := obj.(*domain.Universe)
		if !ok {
			return fmt.Errorf("import %s: archive holds a %s, not a universe", key, obj.Type())
		}
		doc = domain.NewDocument(u, s.engine)
		if err := domain.NewLoader(s.store, doc.Templates).LoadTemplates(ctx); err != nil {
			return err
		}
		repaired, err = doc.Import(u, u)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return s.adopt(doc), repaired, nil
}
