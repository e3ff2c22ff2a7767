package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestStorageImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"omicsreport/internal/blob", true},
		{"omicsreport/internal/blobby", false},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"database/sql", true},
		{"net/http/httptest", true},
		{"net/url", false},
		{"omicsreport/internal/table", false},
		{"gonum.org/v1/plot", false},
	}
	for _, c := range cases {
		if got := StorageImportForbidden(c.in); got != c.want {
			t.Fatalf("StorageImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

type recorder struct{ msg string }

func (r *recorder) Helper() {}
func (r *recorder) Fatalf(format string, args ...any) {
	if r.msg == "" {
		r.msg = fmt.Sprintf(format, args...)
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	write("x_test.go", "package tmp\nimport _ \"database/sql\"\n")
	AssertNoDirectImports(t, dir, StorageImportForbidden, "clean")

	write("y.go", "package tmp\nimport _ \"net/http\"\n")
	r := &recorder{}
	AssertNoDirectImports(r, dir, StorageImportForbidden, "pure")
	if r.msg == "" {
		t.Fatal("expected a violation")
	}
	want := "forbidden imports (pure):\nnet/http (in y.go)"
	if r.msg != want {
		t.Fatalf("message %q want %q", r.msg, want)
	}
}
