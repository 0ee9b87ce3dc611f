package resource_test

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/resource"
)

func TestRequestResourceConfigEpic(t *testing.T) {
	t.Parallel()

	repo := openRepo(t)
	ctx := context.Background()
	if err := repo.Put(ctx, actions.ResourceDashboard, "5", map[string]any{"widgets": []any{}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	epic := resource.Epics(repo, log.New(io.Discard, "", 0))[resource.EpicRequestResourceConfig]

	var got []actions.Action
	dispatch := func(a actions.Action) { got = append(got, a) }

	epic(ctx, actions.RequestResourceConfig(actions.ResourceDashboard, "5", true), nil, dispatch)
	epic(ctx, actions.RequestResourceConfig(actions.ResourceDashboard, "404", false), nil, dispatch)
	epic(ctx, actions.UpdateSettings(nil), nil, dispatch)

	if len(got) != 2 {
		t.Fatalf("dispatched %d actions, want 2", len(got))
	}
	loaded, ok := got[0].Payload.(actions.ResourceConfig)
	if got[0].Type != actions.TypeResourceConfigLoaded || !ok || !loaded.ReadOnly || loaded.ResourceID != "5" {
		t.Fatalf("unexpected loaded action %+v", got[0])
	}
	if got[1].Type != actions.TypeResourceConfigFailed {
		t.Fatalf("unexpected failure action %+v", got[1])
	}
}
