package fs

import (
	"context"
	"epoccore/internal/blob/core"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "universes/baltic.json", strings.NewReader(`{"format":"epoc"}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"root": "universe"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 17 || len(info.ETag) != 64 || !strings.HasPrefix(info.URL, "file://") {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "universes/baltic.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	h, err := store.Head(ctx, "universes/baltic.json")
	if err != nil || h.ContentType != "application/json" || h.Metadata["root"] != "universe" {
		t.Fatalf("unexpected head %+v (%v)", h, err)
	}
	got, rc, err := store.Get(ctx, "universes/baltic.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"format":"epoc"}` || got.ETag != info.ETag {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := store.Put(ctx, "elements/cod.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "")
	if err != nil || len(list) != 2 || list[0].Key != "elements/cod.json" || list[1].Key != "universes/baltic.json" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	if list, _ := store.List(ctx, "universes/"); len(list) != 1 {
		t.Fatalf("expected prefix filter, got %+v", list)
	}

	if ok, err := store.Delete(ctx, "universes/baltic.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "universes/baltic.json"); ok {
		t.Fatalf("expected missing blob on second delete")
	}
	if _, _, err := store.Get(ctx, "universes/baltic.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Head(ctx, "universes/baltic.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "universes", "baltic.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed")
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "../escape", "/abs", "blob.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q rejected", key)
		}
	}
}

func TestStorePresignURL(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	url, err := store.PresignURL(ctx, "a/b.json", core.SignedURLOptions{})
	if err != nil || !strings.HasSuffix(url, "/a/b.json") {
		t.Fatalf("unexpected url %q (%v)", url, err)
	}
	if _, err := store.PresignURL(ctx, "a/b.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestStoreListSurfacesCorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "a.json.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected decode error")
	}
}
