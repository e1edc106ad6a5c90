package cont

import (
	"context"

	"larder/entity"
)

type ctxKey string

const callerKey ctxKey = "caller"

func PutCaller(c context.Context, caller entity.CallerIdentity) context.Context {
	return context.WithValue(c, callerKey, caller)
}

// GetCaller returns the identity resolved by the authenticate middleware;
// requests that never passed it are anonymous.
func GetCaller(c context.Context) entity.CallerIdentity {
	caller, ok := c.Value(callerKey).(entity.CallerIdentity)
	if !ok || caller == nil {
		return entity.AnonymousCaller{Reason: "not resolved"}
	}
	return caller
}

// LookupCaller reports whether a caller was put into the context at all.
func LookupCaller(c context.Context) (entity.CallerIdentity, bool) {
	caller, ok := c.Value(callerKey).(entity.CallerIdentity)
	return caller, ok && caller != nil
}

// GetUser returns the resolved user or nil for anonymous callers.
func GetUser(c context.Context) *entity.User {
	if known, ok := GetCaller(c).(entity.KnownCaller); ok {
		return known.User
	}
	return nil
}
