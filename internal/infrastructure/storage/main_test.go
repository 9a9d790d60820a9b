package storage

import (
	"os"
	"testing"

	"github.com/wfcore/engine/testutil"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.RunWithEmbeddedDB(m))
}
