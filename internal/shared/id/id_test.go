package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"testing"
)

func TestGenerate_Unique(t *testing.T) {
	gen := NewGenerator(rand.Reader)

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator(rand.Reader)

	id := gen.GenerateWithPrefix("evt")
	if !strings.HasPrefix(id, "evt_") {
		t.Errorf("ID should start with 'evt_', got: %s", id)
	}

	parts := strings.Split(id, "_")
	if len(parts) != 2 || len(parts[1]) != 26 {
		t.Errorf("prefixed ID should be 'prefix_<26-char ulid>', got: %s", id)
	}
}

func TestTypedIDs(t *testing.T) {
	ev := NewEventID()
	if !strings.HasPrefix(string(ev), EventPrefix+"_") {
		t.Errorf("event ID should carry its prefix: %s", ev)
	}

	rv := NewReviewID()
	if !strings.HasPrefix(string(rv), ReviewPrefix+"_") {
		t.Errorf("review ID should carry its prefix: %s", rv)
	}
}

func TestGenerate_Concurrent(t *testing.T) {
	gen := NewGenerator(rand.Reader)

	const n = 50
	seen := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- gen.Generate().String()
		}()
	}
	wg.Wait()
	close(seen)

	ids := make(map[string]bool, n)
	for s := range seen {
		if ids[s] {
			t.Fatalf("duplicate ID under concurrency: %s", s)
		}
		ids[s] = true
	}
}
