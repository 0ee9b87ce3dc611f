package plugins_test

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/plugins"
)

var quiet = plugins.WithLogger(log.New(io.Discard, "", 0))

func waitState(t *testing.T, r *plugins.Resolver) plugins.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return st
}

func lazyComponent(name string) plugins.Loader {
	return func(context.Context) (plugins.Plugin, error) {
		return plugins.Component{ID: name}, nil
	}
}

func gatedLoader(name string, gate <-chan struct{}) plugins.Loader {
	return func(ctx context.Context) (plugins.Plugin, error) {
		select {
		case <-gate:
			return plugins.Component{ID: name}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestResolveStaticIsSynchronous(t *testing.T) {
	t.Parallel()

	r := plugins.NewResolver(quiet)
	st := r.Resolve(context.Background(), []plugins.Descriptor{
		plugins.Static("A", plugins.Component{ID: "A"}),
		plugins.Static("B", plugins.Component{ID: "B"}),
	})
	if st.Pending {
		t.Fatalf("static-only request should settle immediately")
	}
	if got := st.Names(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("loaded = %v", got)
	}
}

func TestResolveLazyCommitsOnce(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	r := plugins.NewResolver(quiet)
	st := r.Resolve(context.Background(), []plugins.Descriptor{
		plugins.Static("A", plugins.Component{ID: "A"}),
		plugins.Lazy("B", gatedLoader("B", gate)),
		plugins.Lazy("C", lazyComponent("C")),
	})
	if !st.Pending {
		t.Fatalf("expected pending state")
	}
	if got := st.Names(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("pending state should hold static plugins only, got %v", got)
	}

	time.Sleep(20 * time.Millisecond)
	if cur := r.State(); !cur.Pending || len(cur.Loaded) != 1 {
		t.Fatalf("partial batch was committed: %+v", cur)
	}

	close(gate)
	final := waitState(t, r)
	if got := final.Names(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("loaded = %v", got)
	}
}

func TestResolveDiscardsStaleBatch(t *testing.T) {
	t.Parallel()

	slow := make(chan struct{})
	r := plugins.NewResolver(quiet)
	r.Resolve(context.Background(), []plugins.Descriptor{plugins.Lazy("Old", gatedLoader("Old", slow))})
	r.Resolve(context.Background(), []plugins.Descriptor{plugins.Lazy("New", lazyComponent("New"))})

	st := waitState(t, r)
	if got := st.Names(); !reflect.DeepEqual(got, []string{"New"}) {
		t.Fatalf("loaded = %v", got)
	}

	close(slow)
	time.Sleep(20 * time.Millisecond)
	if got := r.State().Names(); !reflect.DeepEqual(got, []string{"New"}) {
		t.Fatalf("stale batch overwrote state: %v", got)
	}
}

func TestResolveDropsFailures(t *testing.T) {
	t.Parallel()

	r := plugins.NewResolver(quiet)
	r.Resolve(context.Background(), []plugins.Descriptor{
		plugins.Lazy("Good", lazyComponent("Good")),
		plugins.Lazy("Bad", func(context.Context) (plugins.Plugin, error) { return nil, errors.New("boom") }),
		plugins.Lazy("Nil", func(context.Context) (plugins.Plugin, error) { return nil, nil }),
		plugins.Lazy("Panic", func(context.Context) (plugins.Plugin, error) { panic("kaput") }),
	})

	st := waitState(t, r)
	if got := st.Names(); !reflect.DeepEqual(got, []string{"Good"}) {
		t.Fatalf("loaded = %v", got)
	}
	if len(st.Failed) != 3 {
		t.Fatalf("failed = %v", st.Failed)
	}
	if st.Failed["Bad"] != "boom" {
		t.Fatalf("unexpected failure reason %q", st.Failed["Bad"])
	}
}

func TestResolveStaticWinsUnlessOverride(t *testing.T) {
	t.Parallel()

	static := &plugins.Component{ID: "static"}
	r := plugins.NewResolver(quiet)
	r.Resolve(context.Background(), []plugins.Descriptor{
		plugins.Static("A", static),
		plugins.Lazy("A", lazyComponent("lazy")),
	})
	if got := waitState(t, r).Loaded["A"]; got != plugins.Plugin(static) {
		t.Fatalf("static plugin should win, got %#v", got)
	}

	r.Resolve(context.Background(), []plugins.Descriptor{
		plugins.Static("A", static),
		plugins.Lazy("A", lazyComponent("lazy"), plugins.WithOverride()),
	})
	if got := waitState(t, r).Loaded["A"]; got.Name() != "lazy" {
		t.Fatalf("override should replace static plugin, got %#v", got)
	}
}

func TestResolveEqualRequestIsNoop(t *testing.T) {
	t.Parallel()

	calls := 0
	loader := func(context.Context) (plugins.Plugin, error) {
		calls++
		return plugins.Component{ID: "A"}, nil
	}
	r := plugins.NewResolver(quiet)
	descs := []plugins.Descriptor{plugins.Lazy("A", loader)}

	r.Resolve(context.Background(), descs)
	first := waitState(t, r)
	again := r.Resolve(context.Background(), descs)

	if again.Generation != first.Generation || again.Pending {
		t.Fatalf("equal request started a new batch: %+v", again)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times", calls)
	}
}

func TestResolvePublishesCommits(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	defer bus.Shutdown()
	r := plugins.NewResolver(quiet, plugins.WithBus(bus), plugins.WithScope("ms-container"))
	sub := r.Updates()
	defer sub.Close()

	r.Resolve(context.Background(), []plugins.Descriptor{plugins.Lazy("A", lazyComponent("A"))})

	var pending []bool
	timeout := time.After(2 * time.Second)
	for len(pending) < 2 {
		select {
		case env := <-sub.C():
			if env.Payload.Scope != "ms-container" {
				t.Fatalf("scope = %q", env.Payload.Scope)
			}
			pending = append(pending, env.Payload.State.Pending)
		case <-timeout:
			t.Fatalf("timed out, got %v", pending)
		}
	}
	if !reflect.DeepEqual(pending, []bool{true, false}) {
		t.Fatalf("commit sequence = %v", pending)
	}
}
