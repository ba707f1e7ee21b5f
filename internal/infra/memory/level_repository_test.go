package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"math-race-service/internal/domain"
)

func TestLevelRepositoryCaches(t *testing.T) {
	seed := SampleSeed()
	loader := &countingLoader{LevelLoader: NewStaticLevelLoader(seed.Levels, seed.Worlds)}
	repo := NewLevelRepository(loader, time.Minute)

	level, err := repo.GetLevel(context.Background(), 15)
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if !level.IsLastInWorld() {
		t.Fatalf("expected level 15 to close the world, got %+v", level)
	}
	if _, err := repo.GetLevel(context.Background(), 15); err != nil {
		t.Fatalf("get level 2: %v", err)
	}
	if loader.levelCalls() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.levelCalls())
	}

	for i := 0; i < 2; i++ {
		worlds, err := repo.ListWorlds(context.Background())
		if err != nil || len(worlds) != 1 {
			t.Fatalf("list worlds: %v %v", worlds, err)
		}
	}
	if loader.worldCalls != 1 {
		t.Fatalf("expected worlds cached, loader calls %d", loader.worldCalls)
	}
}

func TestLevelRepositoryExpires(t *testing.T) {
	seed := SampleSeed()
	loader := &countingLoader{LevelLoader: NewStaticLevelLoader(seed.Levels, seed.Worlds)}
	repo := NewLevelRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetLevel(context.Background(), 1)
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetLevel(context.Background(), 1)
	if loader.levelCalls() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.levelCalls())
	}
}

func TestLevelRepositoryCollapsesConcurrentMisses(t *testing.T) {
	seed := SampleSeed()
	release := make(chan struct{})
	loader := &countingLoader{LevelLoader: NewStaticLevelLoader(seed.Levels, seed.Worlds), gate: release}
	repo := NewLevelRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetLevel(context.Background(), 2); err != nil {
				t.Errorf("get level: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.levelCalls() != 1 {
		t.Fatalf("expected single flight, loader calls %d", loader.levelCalls())
	}
}

func TestLevelRepositoryDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{LevelLoader: NewStaticLevelLoader(nil, nil)}
	repo := NewLevelRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetLevel(context.Background(), 99); !errors.Is(err, domain.ErrLevelNotFound) {
			t.Fatalf("expected level not found, got %v", err)
		}
	}
	if loader.levelCalls() != 2 {
		t.Fatalf("expected misses to reach loader, calls %d", loader.levelCalls())
	}
}

type countingLoader struct {
	LevelLoader
	gate chan struct{}

	mu         sync.Mutex
	calls      int
	worldCalls int
}

func (l *countingLoader) LoadLevel(ctx context.Context, id int64) (domain.Level, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.gate != nil {
		<-l.gate
	}
	return l.LevelLoader.LoadLevel(ctx, id)
}

func (l *countingLoader) LoadWorlds(ctx context.Context) ([]domain.World, error) {
	l.worldCalls++
	return l.LevelLoader.LoadWorlds(ctx)
}

func (l *countingLoader) levelCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
