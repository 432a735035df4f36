package proposal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyukimin/patchgate/internal/domain/proposal"
)

func newProposal(t *testing.T, id, body string, createdAt time.Time) *proposal.Proposal {
	t.Helper()
	p, err := proposal.New(id, body, []string{"frontend/a.js", "frontend/a.js"}, createdAt)
	require.NoError(t, err)
	return p
}

// 両実装に共通の振る舞いを検証する
func repositories(t *testing.T) map[string]proposal.Repository {
	t.Helper()
	dir := t.TempDir()

	sqliteRepo, err := NewSQLiteProposalRepository(filepath.Join(dir, "proposals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })

	return map[string]proposal.Repository{
		"json":   NewJSONProposalRepository(filepath.Join(dir, "nested", "proposals.json")),
		"sqlite": sqliteRepo,
	}
}

func TestRepository_PutGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.UnixMilli(1700000000123)
			p := newProposal(t, "id-1", "body", created)

			require.NoError(t, repo.Put(ctx, p))

			got, err := repo.Get(ctx, "id-1")
			require.NoError(t, err)
			assert.Equal(t, p.ID(), got.ID())
			assert.Equal(t, p.PatchText(), got.PatchText())
			assert.Equal(t, p.ContentHash(), got.ContentHash())
			assert.Equal(t, p.TouchedFiles(), got.TouchedFiles())
			assert.True(t, created.Equal(got.CreatedAt()))

			_, err = repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, proposal.ErrProposalNotFound)
		})
	}
}

func TestRepository_ListAndDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.UnixMilli(1700000000000)
			require.NoError(t, repo.Put(ctx, newProposal(t, "c", "3", base.Add(2*time.Second))))
			require.NoError(t, repo.Put(ctx, newProposal(t, "a", "1", base)))
			require.NoError(t, repo.Put(ctx, newProposal(t, "b", "2", base.Add(time.Second))))

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "a", list[0].ID())
			assert.Equal(t, "b", list[1].ID())
			assert.Equal(t, "c", list[2].ID())

			require.NoError(t, repo.Delete(ctx, "a", "c", "unknown"))
			list, err = repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "b", list[0].ID())

			require.NoError(t, repo.Delete(ctx))
		})
	}
}

func TestJSONProposalRepository_MissingFileIsEmpty(t *testing.T) {
	repo := NewJSONProposalRepository(filepath.Join(t.TempDir(), "none.json"))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJSONProposalRepository_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	repo := NewJSONProposalRepository(path)
	ctx := context.Background()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// 破損ファイルは次の書き込みで置き換わる
	require.NoError(t, repo.Put(ctx, newProposal(t, "id", "body", time.Now())))
	_, err = repo.Get(ctx, "id")
	require.NoError(t, err)
}

func TestJSONProposalRepository_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.json")
	repo := NewJSONProposalRepository(path)
	require.NoError(t, repo.Put(context.Background(), newProposal(t, "id-1", "body", time.UnixMilli(42))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id-1": {
			"patch": "body",
			"hash": "230d8358dc8e8890b4c58deeb62912ee2f20357ae92a5cc861b98e68fe31acb5",
			"createdAt": 42,
			"files": ["frontend/a.js", "frontend/a.js"]
		}
	}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// 一時ファイルが残らない
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONProposalRepository_TamperedHashRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.json")
	doc := `{"id-1":{"patch":"body","hash":"deadbeef","createdAt":1,"files":["a"]}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	repo := NewJSONProposalRepository(path)

	_, err := repo.Get(context.Background(), "id-1")
	assert.ErrorIs(t, err, proposal.ErrIntegrity)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJSONProposalRepository_ConcurrentPut(t *testing.T) {
	repo := NewJSONProposalRepository(filepath.Join(t.TempDir(), "proposals.json"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			p, err := proposal.New(id, "body "+id, []string{"f"}, time.Now())
			if err == nil {
				_ = repo.Put(ctx, p)
			}
		}(i)
	}
	wg.Wait()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}
