package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/capfit/internal/repository/repotest"
)

func TestSQLiteAnalysisRepository(t *testing.T) {
	ctx := context.Background()

	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "capfit.db"))
	require.NoError(t, err)

	repo := NewSQLiteAnalysisRepository(db)
	defer repo.Close()

	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrations are idempotent")

	repotest.RunRepositoryTests(t, repo)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("sqlite://")
	assert.Error(t, err)
}
