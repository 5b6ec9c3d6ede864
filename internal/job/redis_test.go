package job

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/maauso/mediagen/internal/generation"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

func TestRedisRepository_SaveAndFind(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRedisRepository(client, time.Hour)
	ctx := context.Background()

	job := New(testRequest())
	_ = job.Start()
	_ = job.Complete(generation.DeliveredAsset{URI: "https://cdn/x.png", Method: generation.DeliveryRawLink, Provider: "pollinations"})

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ttl := server.TTL(jobKeyPrefix + job.ID); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %v", ttl)
	}

	found, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", found.Status)
	}
	if found.Result == nil || found.Result.Method != generation.DeliveryRawLink {
		t.Errorf("result not preserved: %+v", found.Result)
	}
}

func TestRedisRepository_NotFoundAndExpiry(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRedisRepository(client, time.Minute)
	ctx := context.Background()

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	job := New(testRequest())
	_ = repo.Save(ctx, job)
	server.FastForward(2 * time.Minute)

	if _, err := repo.FindByID(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected expired job to be gone, got %v", err)
	}
}

func TestRedisRepository_Delete(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewRedisRepository(client, 0)
	ctx := context.Background()

	job := New(testRequest())
	_ = repo.Save(ctx, job)

	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRedisRepository_CorruptDocument(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRedisRepository(client, time.Hour)

	_ = server.Set(jobKeyPrefix+"bad", "{not json")

	_, err := repo.FindByID(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestRedisResultCache(t *testing.T) {
	server, client := newTestRedis(t)
	cache := NewRedisResultCache(client, 10*time.Minute, nil)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "k"); ok {
		t.Error("expected miss on empty cache")
	}

	asset := generation.DeliveredAsset{URI: "https://cdn/a.mp4", Method: generation.DeliveryUploaded, Provider: "veo"}
	cache.Set(ctx, "k", asset)

	got, ok := cache.Get(ctx, "k")
	if !ok || got != asset {
		t.Errorf("expected hit %+v, got %+v (ok=%v)", asset, got, ok)
	}
	if ttl := server.TTL(resultKeyPrefix + "k"); ttl != 10*time.Minute {
		t.Errorf("expected TTL 10m, got %v", ttl)
	}

	cache.Set(ctx, "", asset)
	if _, ok := cache.Get(ctx, ""); ok {
		t.Error("empty key must never hit")
	}

	server.FastForward(11 * time.Minute)
	if _, ok := cache.Get(ctx, "k"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestRedisResultCache_UnavailableIsMiss(t *testing.T) {
	server, client := newTestRedis(t)
	cache := NewRedisResultCache(client, time.Minute, nil)
	server.Close()

	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Error("expected miss when redis is down")
	}
	cache.Set(context.Background(), "k", generation.DeliveredAsset{URI: "x"})
}

func TestMemoryResultCache_Expiry(t *testing.T) {
	now := time.Now()
	cache := NewMemoryResultCache(time.Minute)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	cache.Set(ctx, "k", generation.DeliveredAsset{URI: "https://cdn/a.png"})
	if _, ok := cache.Get(ctx, "k"); !ok {
		t.Fatal("expected hit")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, "k"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestNewRedisClient(t *testing.T) {
	server, _ := newTestRedis(t)

	for _, url := range []string{"redis://" + server.Addr() + "/0", server.Addr()} {
		client := NewRedisClient(url)
		if err := PingRedis(context.Background(), client); err != nil {
			t.Errorf("PingRedis(%q) error = %v", url, err)
		}
		_ = client.Close()
	}
}
