package shared

import "context"

// Actor identifies the upstream-authenticated employee on whose behalf a
// mutation runs. Authorization happens before requests reach this service;
// the engine only records the identifier on ledger entries and orders.
type Actor struct {
	EmployeeID string
}

type actorContextKey struct{}

// ContextWithActor stores the acting employee in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting employee from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
