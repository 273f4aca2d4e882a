package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// PublisherRole is the role a token must carry to drive the admin API.
const PublisherRole = "publisher"

type OIDCAuthenticator struct {
	keyFn  func(t *jwt.Token) (any, error)
	issuer string
}

func NewOIDCAuthenticatorWithKeyFn(keyFn func(t *jwt.Token) (any, error), issuer string) (*OIDCAuthenticator, error) {
	return &OIDCAuthenticator{keyFn: keyFn, issuer: issuer}, nil
}

func NewOIDCAuthenticator(ctx context.Context, jwkCertUrl string, issuer string) (*OIDCAuthenticator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwkCertUrl})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity provider public keys: %w", err)
	}

	return &OIDCAuthenticator{keyFn: k.Keyfunc, issuer: issuer}, nil
}

func (o *OIDCAuthenticator) Authenticate(token string) (User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if o.issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.issuer))
	}

	t, err := jwt.NewParser(opts...).Parse(token, o.keyFn)
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or the token is invalid", "error", err)
		return User{}, fmt.Errorf("failed to authenticate token: %w", err)
	}
	if !t.Valid {
		return User{}, errors.New("failed to parse or validate token")
	}

	return o.parseToken(t)
}

func (o *OIDCAuthenticator) parseToken(userToken *jwt.Token) (User, error) {
	claims, ok := userToken.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, errors.New("failed to parse jwt token claims")
	}

	subject, _ := claims["sub"].(string)
	username, _ := claims["preferred_username"].(string)
	if username == "" {
		username = subject
	}
	if username == "" {
		return User{}, errors.New("token has neither preferred_username nor sub")
	}
	email, _ := claims["email"].(string)

	return User{
		Subject:  subject,
		Username: username,
		Email:    email,
		Roles:    rolesFromClaims(claims),
	}, nil
}

// rolesFromClaims reads the flat "roles" claim and falls back to the
// realm_access.roles claim issued by Keycloak.
func rolesFromClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["roles"].([]any)
	if !ok {
		if realm, ok := claims["realm_access"].(map[string]any); ok {
			raw, _ = realm["roles"].([]any)
		}
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

func (o *OIDCAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if !strings.HasPrefix(accessToken, "Bearer ") {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		user, err := o.Authenticate(strings.TrimPrefix(accessToken, "Bearer "))
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		if !user.HasRole(PublisherRole) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
