package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.GenerateString()
	id2 := gen.GenerateString()

	if len(id1) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("Generated IDs should be unique")
	}
}

func TestTypedIDGeneration(t *testing.T) {
	ids := map[string]string{
		"req":   NewRequestID().String(),
		"trace": NewTraceID().String(),
		"span":  NewSpanID().String(),
	}

	for prefix, id := range ids {
		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Fatalf("ID should have format 'prefix_ulid', got: %s", id)
		}
		if parts[0] != prefix {
			t.Errorf("Expected prefix %q, got %q in ID %s", prefix, parts[0], id)
		}
		if !IsValid(parts[1]) {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(NewGenerator().GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now()
	id := NewGenerator().GenerateString()
	after := time.Now()

	ts, err := Timestamp(id)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision.
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %d outside [%d, %d]", ts.UnixMilli(), before.UnixMilli(), after.UnixMilli())
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 50

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*perGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}
	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Fatalf("Duplicate ID under concurrency: %s", id)
		}
		seen[id] = true
	}
}
