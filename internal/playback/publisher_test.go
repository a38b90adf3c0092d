package playback

import (
	"sync"
	"testing"
)

func TestPublisherEmpty(t *testing.T) {
	var p Publisher
	if _, ok := p.Load(); ok {
		t.Fatal("expected no snapshot before the first publish")
	}
}

func TestPublisherLastValueWins(t *testing.T) {
	var p Publisher
	p.Publish(100, 1)
	p.Publish(200, 2)
	p.Publish(300, 3)

	pos, ok := p.Load()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if pos.Frame != 300 || pos.At != 3 {
		t.Errorf("expected latest snapshot {300, 3}, got %+v", pos)
	}
	if pos.Version != 3 {
		t.Errorf("expected version 3, got %d", pos.Version)
	}
}

func TestPublisherFallsBackWhileWriteInProgress(t *testing.T) {
	var p Publisher
	p.Publish(42, 7)
	if _, ok := p.Load(); !ok {
		t.Fatal("expected a snapshot")
	}

	// Leave the sequence odd, as if the writer stalled mid-publish.
	p.seq.Add(1)
	p.frame.Store(-1)

	pos, ok := p.Load()
	if !ok {
		t.Fatal("expected the previous snapshot")
	}
	if pos.Frame != 42 || pos.At != 7 {
		t.Errorf("expected previous snapshot {42, 7}, got %+v", pos)
	}
}

func TestPublisherNeverTears(t *testing.T) {
	const writes = 200000

	var p Publisher
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := int64(1); i <= writes; i++ {
			p.Publish(i, i*10)
		}
	}()

	var lastVersion uint64
	var lastFrame int64
	reads := 0
	for {
		select {
		case <-done:
			wg.Wait()
			pos, _ := p.Load()
			if pos.Frame != writes {
				t.Errorf("expected final frame %d, got %d", writes, pos.Frame)
			}
			t.Logf("%d reads checked", reads)
			return
		default:
		}

		pos, ok := p.Load()
		if !ok {
			continue
		}
		reads++
		if pos.At != pos.Frame*10 {
			t.Fatalf("torn snapshot: %+v", pos)
		}
		if pos.Version < lastVersion || pos.Frame < lastFrame {
			t.Fatalf("snapshot went backwards: %+v after version %d frame %d", pos, lastVersion, lastFrame)
		}
		if uint64(pos.Frame) != pos.Version {
			t.Fatalf("frame and version disagree: %+v", pos)
		}
		lastVersion, lastFrame = pos.Version, pos.Frame
	}
}
