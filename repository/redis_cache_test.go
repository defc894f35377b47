package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCacheWithClient(db, "auction:", time.Hour)

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("auction:calc:1f").SetVal(`{"loanAmount":1}`)

		val, ok := cache.Get("calc:1f")

		assert.True(t, ok)
		assert.Equal(t, `{"loanAmount":1}`, val)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("auction:calc:2e").RedisNil()

		_, ok := cache.Get("calc:2e")

		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backend error reads as miss", func(t *testing.T) {
		mock.ExpectGet("auction:calc:3d").SetErr(errors.New("connection refused"))

		_, ok := cache.Get("calc:3d")

		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCacheWithClient(db, "auction:", 30*time.Minute)

	mock.ExpectSet("auction:progress:abc", `{"complete":true}`, 30*time.Minute).SetVal("OK")
	require.NoError(t, cache.Set("progress:abc", `{"complete":true}`))

	mock.ExpectSet("auction:progress:abc", "x", 30*time.Minute).SetErr(errors.New("READONLY"))
	assert.Error(t, cache.Set("progress:abc", "x"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", "v"))
	val, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestScenarioRepositoryMemory_Bounded(t *testing.T) {
	repo := NewScenarioRepositoryMemory(2)

	for i := int64(1); i <= 3; i++ {
		s := Scenario{}
		s.Inputs.BidPrice = i
		require.NoError(t, repo.Save(s))
	}

	list := repo.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Inputs.BidPrice)
	assert.Equal(t, int64(3), list[1].Inputs.BidPrice)

	// List hands out a copy
	list[0].Inputs.BidPrice = 99
	assert.Equal(t, int64(2), repo.List()[0].Inputs.BidPrice)
}

func TestScenarioRepositoryMemory_Unbounded(t *testing.T) {
	repo := NewScenarioRepositoryMemory(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, repo.Save(Scenario{}))
	}
	assert.Len(t, repo.List(), 50)
}
