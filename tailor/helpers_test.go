package tailor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	reftesting "github.com/teranos/refinery/internal/testing"
	"github.com/teranos/refinery/store"
)

var assertErr = errors.New("backend failure")

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestVersions(t *testing.T) *store.VersionStore {
	t.Helper()
	database := reftesting.CreateTestDB(t)
	require.NoError(t, store.CreateRun(context.Background(), database, "run-1"))
	return store.NewVersionStore(database, "run-1", nil)
}
