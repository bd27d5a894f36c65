package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

const (
	jwtClaimUserID = "user_id"
	jwtClaimKind   = "kind"
)

// GetUserIDFromContext extracts the authenticated actor's ID from the token
// claims. For staff tokens this is the admin ID.
func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("claims not found in context")
	}

	raw, ok := claims[jwtClaimUserID]
	if !ok {
		return 0, fmt.Errorf("missing %q claim in token", jwtClaimUserID)
	}

	// JSON numbers decode as float64.
	idFloat, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("invalid type for %q claim: %T", jwtClaimUserID, raw)
	}
	id := int(idFloat)
	if id <= 0 || idFloat != float64(id) {
		return 0, fmt.Errorf("invalid %q claim value: %v", jwtClaimUserID, raw)
	}
	return id, nil
}

func GetActorKindFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("claims not found in context")
	}

	raw, ok := claims[jwtClaimKind]
	if !ok {
		return "", fmt.Errorf("missing %q claim in token", jwtClaimKind)
	}
	kind, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for %q claim: %T", jwtClaimKind, raw)
	}

	switch kind {
	case ActorParticipant, ActorStaff:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid actor kind in claim: %q", kind)
	}
}
