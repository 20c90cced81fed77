package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-scheduler/internal/config"
	"content-scheduler/internal/lock"
	"content-scheduler/internal/models"
	"content-scheduler/internal/publisher"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreBackend: "memory",
		LockBackend:  "local",
		Publisher:    "dryrun",
		Timezone:     "UTC",
	}
}

func TestBuildMemoryRuntime(t *testing.T) {
	rt, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &lock.Local{}, rt.Locker)
	assert.IsType(t, &publisher.DryRun{}, rt.Publisher)
	assert.Nil(t, rt.Redis)

	rule, err := rt.Service.GetRule(context.Background(), models.DefaultRuleID)
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
	assert.NotNil(t, rt.Processor())
}

func TestBuildRedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.LockBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.LockTTL = time.Second

	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()
	assert.IsType(t, &lock.Redis{}, rt.Locker)
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "cassandra"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.LockBackend = "redis"
	_, err = Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestAllocatorFromConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.SlotTolerance = 45 * time.Minute
	cfg.HorizonDays = 7
	cfg.EveningCutoffHour = 20

	a := Allocator(cfg)
	assert.Equal(t, 45*time.Minute, a.Tolerance)
	assert.Equal(t, 7, a.HorizonDays)
	assert.Equal(t, 20, a.CutoffHour)
	assert.Equal(t, time.UTC, a.Location)

	cfg.EveningCutoffHour = 0
	assert.Equal(t, 0, Allocator(cfg).CutoffHour)

	cfg.EveningCutoffHour = 30
	assert.Equal(t, 18, Allocator(cfg).CutoffHour)
}
