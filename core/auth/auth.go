package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type contextKey string

const userContextKey contextKey = "auth.user"

func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom returns the authenticated caller, or nil when the request carried
// no valid credentials.
func UserFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userContextKey).(*store.User)
	return u
}

// Authenticator resolves bearer tokens to users. Tokens are opaque; only
// their SHA-256 digests are stored.
type Authenticator struct {
	users store.UsersStore
}

func NewAuthenticator(users store.UsersStore) *Authenticator {
	return &Authenticator{users: users}
}

func (a *Authenticator) Authenticate(r *http.Request) (*store.User, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, nil
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return nil, nil
	}
	u, err := a.users.GetUserByToken(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if u != nil && !u.Active {
		return nil, nil
	}
	return u, nil
}
