package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpline/station-core/config"
	"github.com/pumpline/station-core/report"
)

func TestReportCache_UsesRedisWhenItAnswers(t *testing.T) {
	// GIVEN
	mr := miniredis.RunT(t)
	cfg := config.Config{RedisAddr: mr.Addr(), ReportCacheTTL: time.Minute}

	// WHEN
	cache, closeFn := reportCache(context.Background(), cfg)

	// THEN
	require.IsType(t, &report.RedisCache{}, cache)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())
}

func TestReportCache_FallsBackWhenRedisIsDown(t *testing.T) {
	// GIVEN: an address nothing listens on any more
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := config.Config{RedisAddr: addr, ReportCacheTTL: time.Minute}

	// WHEN
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cache, closeFn := reportCache(ctx, cfg)

	// THEN: the dropped client was closed here, nothing is left to close
	assert.IsType(t, &report.MemoryCache{}, cache)
	assert.Nil(t, closeFn)
}

func TestReportCache_DisabledWithoutTTL(t *testing.T) {
	cache, closeFn := reportCache(context.Background(), config.Config{RedisAddr: "localhost:6379"})

	assert.Nil(t, cache)
	assert.Nil(t, closeFn)
}
