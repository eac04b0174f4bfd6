package authenticators

import (
	"k8s.io/apiserver/pkg/authentication/authenticator"
)

// AuthMethodExtra is the user.Info extra key naming the method that
// authenticated the request.
const AuthMethodExtra = "auth-method"

// AuthenticatorRequest is implemented by every authenticator of the service.
type AuthenticatorRequest authenticator.Request
