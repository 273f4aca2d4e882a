package auth

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/statspub/publisher/internal/config"
)

// Authenticator is a middleware that rejects unauthenticated requests and
// puts the User of the others in the request context.
type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	OIDCAuthentication string = "oidc"
	NoneAuthentication string = "none"
)

// NewAuthenticator picks the authenticator named in the configuration. An
// empty type means none, any other unknown type is refused.
func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	switch authConfig.AuthenticationType {
	case OIDCAuthentication:
		if authConfig.JwkCertURL == "" {
			return nil, fmt.Errorf("oidc authentication needs a jwk url")
		}
		zap.S().Named("auth").Infow("authenticating with oidc", "issuer", authConfig.Issuer)
		return NewOIDCAuthenticator(context.Background(), authConfig.JwkCertURL, authConfig.Issuer)
	case NoneAuthentication, "":
		zap.S().Named("auth").Warn("authentication disabled, every caller is a publisher")
		return NewNoneAuthenticator()
	default:
		return nil, fmt.Errorf("unknown authentication type %q", authConfig.AuthenticationType)
	}
}
