/*Package access provides utilities for access control
 */
package access

import (
	"context"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyIdentity contextKey = "_identity_"
)

/*Identity is a context object which describes the authenticated requester.

An identity carries the username, the role and the forced password change
flag exactly as they were encoded into the session token at login time.

Identities are added to a request context with

  ctx = identity.ContextWithIdentity(ctx)

and retrieved with

  identity := IdentityFromContext(ctx)

The token middleware adds an identity to the context for every request
with a valid bearer token.
*/
type Identity struct {
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// RoleAdmin is the only role with unrestricted access. Any other role
// string is treated as a plain authenticated user.
const RoleAdmin = "admin"

// IsAdmin returns true if the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// ContextWithIdentity returns a new context with this identity added to it
func (i *Identity) ContextWithIdentity(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, i)
}

// IdentityFromContext retrieves an identity from the context
func IdentityFromContext(ctx context.Context) *Identity {
	i, ok := ctx.Value(contextKeyIdentity).(*Identity)
	if ok {
		return i
	}
	return nil
}
