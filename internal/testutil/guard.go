// Package testutil holds test helpers that keep package boundaries in
// place: the computational packages never reach storage or the network.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// storagePrefixes are imports reserved for the packages that own I/O.
var storagePrefixes = []string{
	"omicsreport/internal/blob",
	"omicsreport/internal/ledger",
	"omicsreport/internal/dataset",
	"omicsreport/internal/geneinfo",
	"omicsreport/internal/report",
	"github.com/aws/",
	"github.com/jackc/",
	"modernc.org/sqlite",
	"database/sql",
	"net/http",
	"os/exec",
}

// StorageImportForbidden matches storage, network and process imports.
func StorageImportForbidden(path string) bool {
	for _, p := range storagePrefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Fataler is the part of testing.TB the guards need.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertNoDirectImports parses every non-test .go file in dir and fails if
// an import matches forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t Fataler, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
