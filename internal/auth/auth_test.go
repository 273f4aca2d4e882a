package auth_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/statspub/publisher/internal/auth"
	"github.com/statspub/publisher/internal/config"
)

var _ = Describe("authenticator factory", func() {
	It("defaults to no authentication", func() {
		a, err := auth.NewAuthenticator(config.Auth{})
		Expect(err).To(BeNil())
		Expect(a).To(BeAssignableToTypeOf(&auth.NoneAuthenticator{}))
	})

	It("refuses oidc without a jwk url", func() {
		_, err := auth.NewAuthenticator(config.Auth{AuthenticationType: auth.OIDCAuthentication})
		Expect(err).NotTo(BeNil())
	})

	It("refuses unknown types", func() {
		_, err := auth.NewAuthenticator(config.Auth{AuthenticationType: "ldap"})
		Expect(err).To(MatchError(ContainSubstring("ldap")))
	})
})
