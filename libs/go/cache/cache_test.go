package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string
}

func TestGetKeys_ReturnsMissingOnEmptyCache(t *testing.T) {
	c := New(nil, time.Minute)
	found, missing := GetKeys[widget](context.Background(), c, KindProject, []int64{1, 2, 3})
	assert.Empty(t, found)
	assert.ElementsMatch(t, []int64{1, 2, 3}, missing)
}

func TestSetMany_ThenGetKeysHitsLocalTier(t *testing.T) {
	c := New(nil, time.Minute)
	SetMany(context.Background(), c, KindProject, map[int64]widget{
		1: {Name: "a"},
		2: {Name: "b"},
	})

	found, missing := GetKeys[widget](context.Background(), c, KindProject, []int64{1, 2, 3})
	assert.Equal(t, widget{Name: "a"}, found[1])
	assert.Equal(t, widget{Name: "b"}, found[2])
	assert.Equal(t, []int64{3}, missing)
}

func TestDelete_EvictsLocalEntry(t *testing.T) {
	c := New(nil, time.Minute)
	c.Set(context.Background(), Key(KindUser, 9), widget{Name: "u"})
	c.Delete(context.Background(), Key(KindUser, 9))

	found, missing := GetKeys[widget](context.Background(), c, KindUser, []int64{9})
	assert.Empty(t, found)
	assert.Equal(t, []int64{9}, missing)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(nil, time.Millisecond)
	c.Set(context.Background(), Key(KindVersion, 1), widget{Name: "v"})
	time.Sleep(5 * time.Millisecond)

	found, missing := GetKeys[widget](context.Background(), c, KindVersion, []int64{1})
	assert.Empty(t, found)
	assert.Equal(t, []int64{1}, missing)
}

func TestFetch_CoalescesConcurrentLoadsForSameKey(t *testing.T) {
	c := New(nil, time.Minute)
	var loadCount int64

	var wg sync.WaitGroup
	results := make([]widget, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, "widget:1", func(ctx context.Context) (widget, error) {
				atomic.AddInt64(&loadCount, 1)
				time.Sleep(10 * time.Millisecond)
				return widget{Name: "loaded"}, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&loadCount), "singleflight should coalesce concurrent loads of the same key")
	for _, r := range results {
		assert.Equal(t, widget{Name: "loaded"}, r)
	}
}

func TestFetch_SubsequentCallHitsCacheWithoutReload(t *testing.T) {
	c := New(nil, time.Minute)
	var loadCount int64
	load := func(ctx context.Context) (widget, error) {
		atomic.AddInt64(&loadCount, 1)
		return widget{Name: "loaded"}, nil
	}

	_, err := Fetch(context.Background(), c, "widget:2", load)
	require.NoError(t, err)
	_, err = Fetch(context.Background(), c, "widget:2", load)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&loadCount))
}

func TestSlugKey_IsCaseInsensitive(t *testing.T) {
	c := New(nil, time.Minute)
	c.Set(context.Background(), SlugKey(KindProject, "Fabric-API"), widget{Name: "fabric"})

	_, _, bySlug, missing := GetKeysWithSlug[widget](context.Background(), c, KindProject, nil, []string{"fabric-api"})
	assert.Equal(t, widget{Name: "fabric"}, bySlug["fabric-api"])
	assert.Empty(t, missing)
}

func TestDeleteMany_EvictsAllGivenIDs(t *testing.T) {
	c := New(nil, time.Minute)
	SetMany(context.Background(), c, KindTeam, map[int64]widget{1: {Name: "a"}, 2: {Name: "b"}})

	DeleteMany(context.Background(), c, KindTeam, []int64{1, 2})

	found, missing := GetKeys[widget](context.Background(), c, KindTeam, []int64{1, 2})
	assert.Empty(t, found)
	assert.ElementsMatch(t, []int64{1, 2}, missing)
}
