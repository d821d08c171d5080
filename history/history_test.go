package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/store"
)

func ad(id string) models.AdResult {
	return models.AdResult{ID: id, VideoURL: "https://video.fbcdn.net/" + id + ".mp4"}
}

func ids(items []models.AdResult) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestList_Empty(t *testing.T) {
	s := New(store.NewMemoryStore(), config.Default().History)

	items, err := s.List(context.Background(), "guest:1")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAdd_NewestFirstCappedDeduped(t *testing.T) {
	s := New(store.NewMemoryStore(), config.Default().History)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		require.NoError(t, s.Add(ctx, "guest:1", ad(fmt.Sprint(i))))
	}
	items, err := s.List(ctx, "guest:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"8", "7", "6", "5", "4", "3"}, ids(items))

	// Re-parsing an ad moves it to the front without duplicating it.
	require.NoError(t, s.Add(ctx, "guest:1", ad("5")))
	items, err = s.List(ctx, "guest:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "8", "7", "6", "4", "3"}, ids(items))
}

func TestAdd_DropsCacheStatus(t *testing.T) {
	s := New(store.NewMemoryStore(), config.Default().History)
	ctx := context.Background()

	item := ad("1")
	item.CacheStatus = "hit"
	require.NoError(t, s.Add(ctx, "guest:1", item))

	items, err := s.List(ctx, "guest:1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].CacheStatus)
}

func TestHistoryIsPerIdentityAndClearable(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	s := New(rs, config.Default().History)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "user:1", ad("a")))
	require.NoError(t, s.Add(ctx, "user:2", ad("b")))
	assert.True(t, mr.Exists("fb_ads_saver_history:user:1"))

	require.NoError(t, s.Clear(ctx, "user:1"))

	items, err := s.List(ctx, "user:1")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.List(ctx, "user:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(items))
}

func TestList_CorruptValue(t *testing.T) {
	ms := store.NewMemoryStore()
	require.NoError(t, ms.Set(context.Background(), "fb_ads_saver_history:guest:1", []byte("not json"), 0))

	_, err := New(ms, config.Default().History).List(context.Background(), "guest:1")
	assert.Error(t, err)
}
