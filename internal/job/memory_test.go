package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	j := NewWithID("job-1", testRequest())

	require.NoError(t, repo.Save(ctx, j))

	found, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, j.Request, found.Request)

	found.Request.Output = "elsewhere.tar"
	again, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, testRequest().Output, again.Request.Output, "stored jobs are isolated from callers")

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRepository_ListOrdered(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		j := NewWithID(id, testRequest())
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Save(ctx, j))
	}

	jobs, err := repo.List(ctx)
	require.NoError(t, err)

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, NewWithID("job-1", testRequest())))

	require.NoError(t, repo.Delete(ctx, "job-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "job-1"), ErrJobNotFound)
	_, err := repo.FindByID(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j := New(testRequest())
			assert.NoError(t, repo.Save(ctx, j))
			_, err := repo.FindByID(ctx, j.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 50)
}
