package validation

import (
	"path/filepath"
	"strings"
	"testing"
)

const module = "epoccore"

func TestCheckImportsFlagsDomainDrivers(t *testing.T) {
	errs := CheckImports("epoccore/pkg/domain", []string{
		"context",
		"github.com/RoaringBitmap/roaring",
		"modernc.org/sqlite",
		"epoccore/internal/core",
	}, DefaultRules(module))
	if len(errs) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(errs), errs)
	}
	if errs[0].Code != "modernc.org/sqlite" || errs[1].Code != "epoccore/internal/core" {
		t.Fatalf("unexpected violations: %v", errs)
	}
	if !strings.Contains(errs[0].String(), "epoccore/pkg/domain") {
		t.Fatalf("expected package in message, got %q", errs[0].String())
	}
}

func TestCheckImportsMatchesWholeElements(t *testing.T) {
	rules := []Rule{{From: "epoccore/internal/blob", Deny: []string{"epoccore/pkg/domain"}, Message: "no"}}
	if errs := CheckImports("epoccore/internal/blobcache", []string{"epoccore/pkg/domain"}, rules); len(errs) != 0 {
		t.Fatalf("blobcache is not under internal/blob: %v", errs)
	}
	if errs := CheckImports("epoccore/internal/blob/core", []string{"epoccore/pkg/domainx"}, rules); len(errs) != 0 {
		t.Fatalf("domainx is not pkg/domain: %v", errs)
	}
	if errs := CheckImports("epoccore/internal/blob/core", []string{"epoccore/pkg/domain"}, rules); len(errs) != 1 {
		t.Fatalf("expected a violation, got %v", errs)
	}
}

func TestCheckImportsInfraCannotReachUp(t *testing.T) {
	errs := CheckImports("epoccore/internal/infra/persistence/sqlite",
		[]string{"epoccore/pkg/domain", "epoccore/internal/infra/persistence/memory", "epoccore/internal/config"},
		DefaultRules(module))
	if len(errs) != 1 || errs[0].Code != "epoccore/internal/config" {
		t.Fatalf("expected config import to be flagged, got %v", errs)
	}
}

func TestModuleLayering(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the whole module")
	}
	root, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("resolve module root: %v", err)
	}
	errs, err := ValidateLayering(root, DefaultRules(module), "./pkg/...", "./internal/...")
	if err != nil {
		t.Fatalf("validate layering: %v", err)
	}
	for _, e := range errs {
		t.Errorf("layering violation: %s", e)
	}
}
