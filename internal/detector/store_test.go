package detector

import (
	"context"
	"testing"

	"matchbot/internal/match"
	"matchbot/internal/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := New(match.NewTeam([]string{"A"}, "A"))
	st := NewStore(storage.NewMemory(), d.Baseline())

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Match.Status != match.StatusScheduled || got.Score.Opponent.Name != "Unknown" {
		t.Fatalf("expected baseline, got %+v", got)
	}

	want := State{Match: snap(match.StatusInProgress), Score: *score(2, 1)}
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Match.Status != match.StatusInProgress || got.Score.Team.Score != 2 || got.Score.Opponent.Score != 1 {
		t.Fatalf("unexpected state %+v", got)
	}
}
