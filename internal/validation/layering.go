// Package validation enforces the module's package layering: the object
// engine stays free of storage drivers and service code, and backends never
// reach back up into the layers that use them.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Error represents a layering violation found in code.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

func (e Error) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s (%s)", e.File, e.Line, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.File, e.Message, e.Code)
}

// Rule forbids packages whose import path starts with From from importing
// any path that starts with one of Deny.
type Rule struct {
	From    string
	Deny    []string
	Message string
}

// DefaultRules returns the layering of the module rooted at module.
func DefaultRules(module string) []Rule {
	return []Rule{
		{
			From: module + "/pkg/domain",
			Deny: []string{
				module + "/internal/",
				module + "/cmd/",
				"database/sql",
				"github.com/jackc/pgx",
				"modernc.org/sqlite",
				"github.com/aws/",
				"github.com/prometheus/",
			},
			Message: "the object engine must not depend on storage, transport or service code",
		},
		{
			From:    module + "/internal/infra/",
			Deny:    []string{module + "/internal/core", module + "/internal/archive", module + "/internal/config", module + "/cmd/"},
			Message: "backends must not import the layers built on them",
		},
		{
			From:    module + "/internal/blob",
			Deny:    []string{module + "/pkg/domain", module + "/internal/archive", module + "/internal/core"},
			Message: "blob stores are byte stores and must not know about objects",
		},
		{
			From:    module + "/internal/archive",
			Deny:    []string{module + "/internal/core", module + "/internal/infra/persistence", module + "/cmd/"},
			Message: "archives depend on the engine and blob stores only",
		},
	}
}

// CheckImports applies rules to one package's imports.
func CheckImports(pkgPath string, imports []string, rules []Rule) []Error {
	var errs []Error
	for _, r := range rules {
		if !hasPathPrefix(pkgPath, r.From) {
			continue
		}
		for _, imp := range imports {
			for _, deny := range r.Deny {
				if hasPathPrefix(imp, deny) {
					errs = append(errs, Error{File: pkgPath, Message: r.Message, Code: imp})
					break
				}
			}
		}
	}
	return errs
}

// ValidateLayering loads the packages matched by patterns from dir and
// checks every non-test import against rules.
func ValidateLayering(dir string, rules []Rule, patterns ...string) ([]Error, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Dir: dir}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	var errs []Error
	for _, p := range pkgs {
		for _, e := range p.Errors {
			errs = append(errs, Error{File: p.PkgPath, Message: "package failed to load", Code: e.Msg})
		}
		imports := make([]string, 0, len(p.Imports))
		for path := range p.Imports {
			imports = append(imports, path)
		}
		sort.Strings(imports)
		errs = append(errs, CheckImports(p.PkgPath, imports, rules)...)
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].File < errs[j].File })
	return errs, nil
}

// hasPathPrefix matches whole path elements unless prefix ends in "/".
func hasPathPrefix(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
