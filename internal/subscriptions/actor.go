package subscriptions

import "context"

// Actor is the user behind a mutation, recorded in the audit log.
type Actor struct {
	ID   int64
	Name string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
