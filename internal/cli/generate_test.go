package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"math-race-service/internal/config"
	"math-race-service/internal/domain"
	"math-race-service/internal/infra/memory"
)

func TestPrintQuestions(t *testing.T) {
	seed := memory.SampleSeed()
	var out bytes.Buffer
	if err := printQuestions(&out, seed.Levels, seed.Worlds, 2, 3, 7); err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 questions, got %q", out.String())
	}
	if !strings.Contains(lines[0], "policy=LESS") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	for _, line := range lines[1:] {
		if !strings.Contains(line, "y = ") || !strings.Contains(line, "answer=") {
			t.Fatalf("unexpected question line %q", line)
		}
	}

	if err := printQuestions(&out, seed.Levels, seed.Worlds, 99, 1, 7); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Fatalf("expected level not found, got %v", err)
	}
}

func TestOpenGameStoreRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig("cassandra")
	if _, _, err := openGameStore(context.Background(), cfg, nil, 0); err == nil {
		t.Fatalf("expected unknown store error")
	}
	cfg = testConfig("redis")
	if _, _, err := openGameStore(context.Background(), cfg, nil, 0); err == nil {
		t.Fatalf("expected redis store to require a client")
	}
	cfg = testConfig("")
	store, release, err := openGameStore(context.Background(), cfg, nil, 0)
	if err != nil || store == nil {
		t.Fatalf("expected memory store by default: %v", err)
	}
	release()
}

func testConfig(store string) config.Config {
	var cfg config.Config
	cfg.Race.Store = store
	return cfg
}
