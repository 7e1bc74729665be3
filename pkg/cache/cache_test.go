package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assetload/pkg/common"
)

func textValue(s string) common.Value {
	return common.TextValue(&common.TextBlob{Text: s, MediaType: "text/plain", Charset: "utf-8"})
}

func TestLifecycle(t *testing.T) {
	c := New()

	if e, ok := c.Get("a"); ok || e.State != Unloaded {
		t.Fatalf("expected absent key to be unloaded, got %+v", e)
	}

	attempt, err := c.BeginLoad("a", common.KindText)
	if err != nil {
		t.Fatalf("BeginLoad failed: %v", err)
	}
	if attempt == "" {
		t.Error("expected a non-empty attempt id")
	}
	e, _ := c.Get("a")
	if e.State != Loading || e.Value != nil || e.Err != nil || e.Attempts != 1 {
		t.Errorf("unexpected loading entry %+v", e)
	}

	if err := c.CompleteLoad("a", textValue("hi")); err != nil {
		t.Fatalf("CompleteLoad failed: %v", err)
	}
	e, _ = c.Get("a")
	if e.State != Loaded || e.Value == nil || e.Value.Text.Text != "hi" {
		t.Fatalf("unexpected loaded entry %+v", e)
	}
	if e.Attempt != attempt {
		t.Errorf("attempt changed from %s to %s", attempt, e.Attempt)
	}

	released, err := c.Release("a")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released.State != Loaded || released.Kind != common.KindText {
		t.Errorf("unexpected released snapshot %+v", released)
	}
	if !released.Value.Released() {
		t.Error("expected value to be destroyed on release")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestBeginLoadRejectsLoadingAndLoaded(t *testing.T) {
	c := New()
	if _, err := c.BeginLoad("a", common.KindImage); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BeginLoad("a", common.KindImage); !errors.Is(err, ErrAlreadyLoadingOrLoaded) {
		t.Errorf("expected ErrAlreadyLoadingOrLoaded while loading, got %v", err)
	}
	if err := c.CompleteLoad("a", textValue("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BeginLoad("a", common.KindImage); !errors.Is(err, ErrAlreadyLoadingOrLoaded) {
		t.Errorf("expected ErrAlreadyLoadingOrLoaded once loaded, got %v", err)
	}
}

func TestFailedCanBeRestarted(t *testing.T) {
	c := New()
	first, _ := c.BeginLoad("a", common.KindAudio)
	cause := errors.New("boom")
	if err := c.FailLoad("a", cause); err != nil {
		t.Fatalf("FailLoad failed: %v", err)
	}
	e, _ := c.Get("a")
	if e.State != Failed || !errors.Is(e.Err, cause) || e.Value != nil {
		t.Fatalf("unexpected failed entry %+v", e)
	}

	second, err := c.BeginLoad("a", common.KindAudio)
	if err != nil {
		t.Fatalf("expected restart from Failed, got %v", err)
	}
	if second == first {
		t.Error("expected a fresh attempt id")
	}
	e, _ = c.Get("a")
	if e.State != Loading || e.Err != nil || e.Attempts != 2 {
		t.Errorf("unexpected restarted entry %+v", e)
	}
}

func TestInvalidTransitions(t *testing.T) {
	c := New()
	if err := c.CompleteLoad("missing", textValue("x")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for absent key, got %v", err)
	}
	if err := c.FailLoad("missing", errors.New("x")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for absent key, got %v", err)
	}

	c.BeginLoad("a", common.KindText)
	c.CompleteLoad("a", textValue("x"))
	if err := c.CompleteLoad("a", textValue("y")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for loaded key, got %v", err)
	}
	if err := c.FailLoad("a", errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for loaded key, got %v", err)
	}
	e, _ := c.Get("a")
	if e.State != Loaded || e.Value.Text.Text != "x" {
		t.Errorf("rejected transition mutated entry: %+v", e)
	}
}

func TestReleaseRules(t *testing.T) {
	c := New()
	if _, err := c.Release("missing"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded for absent key, got %v", err)
	}

	c.BeginLoad("a", common.KindText)
	if _, err := c.Release("a"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded while loading, got %v", err)
	}
	if e, _ := c.Get("a"); e.State != Loading {
		t.Errorf("release of loading key changed state to %s", e.State)
	}

	c.FailLoad("a", errors.New("boom"))
	released, err := c.Release("a")
	if err != nil {
		t.Fatalf("expected release of failed key to succeed, got %v", err)
	}
	if released.State != Failed {
		t.Errorf("expected failed snapshot, got %s", released.State)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected failed entry to be removed")
	}
}

func TestWait(t *testing.T) {
	c := New()

	e, ok, err := c.Wait(context.Background(), "missing")
	if err != nil || ok || e.State != Unloaded {
		t.Fatalf("expected immediate unloaded result, got %+v %v %v", e, ok, err)
	}

	c.BeginLoad("a", common.KindText)
	result := make(chan Entry, 1)
	go func() {
		e, _, err := c.Wait(context.Background(), "a")
		if err != nil {
			t.Errorf("Wait failed: %v", err)
		}
		result <- e
	}()

	time.Sleep(10 * time.Millisecond)
	c.CompleteLoad("a", textValue("done"))

	select {
	case e := <-result:
		if e.State != Loaded {
			t.Errorf("expected loaded after wait, got %s", e.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after completion")
	}

	e, ok, err = c.Wait(context.Background(), "a")
	if err != nil || !ok || e.State != Loaded || e.Value.Text.Text != "done" {
		t.Errorf("expected settled entry without blocking, got %+v %v %v", e, ok, err)
	}

	c.Release("a")
	c.BeginLoad("a", common.KindText)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := c.Wait(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWithLoaded(t *testing.T) {
	c := New()
	called := false
	fn := func(common.Kind, common.Value) { called = true }

	if c.WithLoaded("a", fn) || called {
		t.Fatal("fn ran for an absent key")
	}
	c.BeginLoad("a", common.KindText)
	if c.WithLoaded("a", fn) || called {
		t.Fatal("fn ran for a loading key")
	}
	c.CompleteLoad("a", textValue("hello"))
	ok := c.WithLoaded("a", func(kind common.Kind, v common.Value) {
		called = true
		if kind != common.KindText || v.Text.Text != "hello" {
			t.Errorf("got %s %+v", kind, v.Text)
		}
	})
	if !ok || !called {
		t.Fatal("fn did not run for a loaded key")
	}
}

func TestWithLoadedSerializesRelease(t *testing.T) {
	c := New()
	var seenReleased atomic.Int32
	for i := 0; i < 200; i++ {
		c.BeginLoad("a", common.KindText)
		c.CompleteLoad("a", textValue("hello"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.WithLoaded("a", func(_ common.Kind, v common.Value) {
				if v.Released() || v.Text.Text != "hello" {
					seenReleased.Add(1)
				}
			})
		}()
		go func() {
			defer wg.Done()
			c.Release("a")
		}()
		wg.Wait()
	}
	if n := seenReleased.Load(); n != 0 {
		t.Errorf("fn observed a released value %d times", n)
	}
}

func TestConcurrentBeginLoadSingleWinner(t *testing.T) {
	c := New()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.BeginLoad("hot", common.KindImage); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestKeys(t *testing.T) {
	c := New()
	for _, k := range []string{"c", "a", "b"} {
		c.BeginLoad(k, common.KindText)
	}
	got := c.Keys()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}
