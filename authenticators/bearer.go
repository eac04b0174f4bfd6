package authenticators

import (
	"net/http"
	"strings"

	"github.com/arrikto/simpleauth/logger"
	"k8s.io/apiserver/pkg/authentication/authenticator"
	"k8s.io/apiserver/pkg/authentication/user"
)

const (
	bearerScheme     = "bearer"
	bearerAuthMethod = "bearer-digest"
)

// DigestVerifier resolves a bearer digest to an identity.
// *credentials.Store implements it.
type DigestVerifier interface {
	Verify(digest string) (string, bool)
}

// BearerDigestAuthenticator admits requests carrying
// "Authorization: Bearer <digest>" where digest is known to the Verifier.
type BearerDigestAuthenticator struct {
	Header   string // header name where the bearer digest is stored
	Verifier DigestVerifier
}

var _ AuthenticatorRequest = &BearerDigestAuthenticator{}

func NewBearerDigestAuthenticator(header string, verifier DigestVerifier) *BearerDigestAuthenticator {
	if header == "" {
		header = "Authorization"
	}
	return &BearerDigestAuthenticator{Header: header, Verifier: verifier}
}

// AuthenticateRequest implements authenticator.Request. It never returns an
// error: a missing header, a foreign scheme and an unknown digest all come
// back as not found.
func (a *BearerDigestAuthenticator) AuthenticateRequest(r *http.Request) (*authenticator.Response, bool, error) {
	logger := logger.ForRequest(r).WithField("context", "bearer digest authenticator")

	resp, found := a.AuthenticateHeader(r.Header.Get(a.Header))
	if !found {
		logger.Debug("Bearer digest rejected")
		return nil, false, nil
	}
	return resp, true, nil
}

// AuthenticateHeader decides on a raw header value.
func (a *BearerDigestAuthenticator) AuthenticateHeader(value string) (*authenticator.Response, bool) {
	digest, ok := bearerDigest(value)
	if !ok {
		return nil, false
	}
	identity, ok := a.Verifier.Verify(digest)
	if !ok {
		return nil, false
	}
	return &authenticator.Response{
		User: &user.DefaultInfo{
			Name:  identity,
			Extra: map[string][]string{AuthMethodExtra: {bearerAuthMethod}},
		},
	}, true
}

// bearerDigest extracts the credential from "Bearer <digest>". The scheme is
// matched case-insensitively; the digest is returned as sent.
func bearerDigest(value string) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], bearerScheme) {
		return "", false
	}
	return fields[1], true
}
