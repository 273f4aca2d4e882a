package auth_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/statspub/publisher/internal/auth"
)

const testIssuer = "https://id.example.org/realms/statspub"

var _ = Describe("oidc authentication", func() {
	Context("authenticate", func() {
		It("successfully validate the token", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{
				"preferred_username": "jdoe",
				"email":              "jdoe@example.org",
				"roles":              []string{"publisher"},
			})
			authenticator, err := auth.NewOIDCAuthenticatorWithKeyFn(keyFn, testIssuer)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("jdoe"))
			Expect(user.Email).To(Equal("jdoe@example.org"))
			Expect(user.HasRole(auth.PublisherRole)).To(BeTrue())
		})

		It("reads keycloak realm roles and falls back to sub", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{
				"realm_access": map[string]any{"roles": []string{"publisher", "viewer"}},
			})
			authenticator, err := auth.NewOIDCAuthenticatorWithKeyFn(keyFn, testIssuer)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("somebody"))
			Expect(user.Roles).To(ConsistOf("publisher", "viewer"))
		})

		It("fails to authenticate -- wrong issuer", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"preferred_username": "jdoe"})
			authenticator, err := auth.NewOIDCAuthenticatorWithKeyFn(keyFn, "https://elsewhere.example.org")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails to authenticate -- wrong signing method", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			authenticator, err := auth.NewOIDCAuthenticatorWithKeyFn(keyFn, testIssuer)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("middleware", func() {
		It("successfully authenticate", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"preferred_username": "jdoe", "roles": []string{"publisher"}})
			Expect(call(keyFn, sToken)).To(Equal(http.StatusOK))
		})

		It("rejects a token without the publisher role", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"preferred_username": "jdoe", "roles": []string{"viewer"}})
			Expect(call(keyFn, sToken)).To(Equal(http.StatusForbidden))
		})

		It("failed to authenticate", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			Expect(call(keyFn, sToken)).To(Equal(http.StatusUnauthorized))
		})

		It("requires a bearer token", func() {
			_, keyFn := generateToken(jwt.MapClaims{})
			Expect(call(keyFn, "")).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("none", func() {
		It("injects a local publisher", func() {
			authenticator, err := auth.NewNoneAuthenticator()
			Expect(err).To(BeNil())

			var user auth.User
			h := authenticator.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user = auth.MustHaveUser(r.Context())
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(user.Username).To(Equal("admin"))
			Expect(user.HasRole(auth.PublisherRole)).To(BeTrue())
		})
	})
})

func call(keyFn func(t *jwt.Token) (any, error), token string) int {
	authenticator, err := auth.NewOIDCAuthenticatorWithKeyFn(keyFn, testIssuer)
	Expect(err).To(BeNil())

	ts := httptest.NewServer(authenticator.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	Expect(err).To(BeNil())
	if token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).To(BeNil())
	defer resp.Body.Close()
	return resp.StatusCode
}

func registered(claims jwt.MapClaims) jwt.MapClaims {
	now := time.Now()
	claims["exp"] = now.Add(time.Hour).Unix()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["iss"] = testIssuer
	claims["sub"] = "somebody"
	return claims
}

func generateToken(claims jwt.MapClaims) (string, func(t *jwt.Token) (any, error)) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, registered(claims))
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}

func generateTokenWrongSigningMethod() (string, func(t *jwt.Token) (any, error)) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodES256, registered(jwt.MapClaims{"preferred_username": "jdoe"}))
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}
