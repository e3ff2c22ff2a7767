package stats

import (
	"testing"

	"omicsreport/internal/testutil"
)

func TestNoStorageImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageImportForbidden, "stats is pure computation")
}
