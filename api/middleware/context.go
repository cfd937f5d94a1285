package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// Actor is the authenticated caller placed on the request context by Auth.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

type actorKey struct{}

func WithActor(ctx context.Context, userID uuid.UUID, role enums.ActorRole) context.Context {
	return context.WithValue(ctx, actorKey{}, Actor{UserID: userID, Role: role})
}

// ActorFromContext returns the caller, or false on unauthenticated routes.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.UserID != uuid.Nil
}
