package common

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TlsConfig is a PEM CA bundle used to reach an authservice behind a private
// CA. An empty bundle means the system roots.
type TlsConfig []byte

// Context returns a context carrying an HTTP client that trusts the bundle.
// DoRequest picks the client up from the context.
func (c TlsConfig) Context(ctx context.Context) context.Context {
	if len(c) == 0 {
		return ctx
	}
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		logrus.Warning("Could not load system cert pool")
		rootCAs = x509.NewCertPool()
	}
	if ok := rootCAs.AppendCertsFromPEM(c); !ok {
		logrus.Warning("Could not append custom CA bundle, using system certs only")
	}
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{RootCAs: rootCAs, MinVersion: tls.VersionTLS12},
	}
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: tr})
}
