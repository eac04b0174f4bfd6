// Copyright © 2019 Arrikto Inc.  All Rights Reserved.

package common

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	VerifyPath       = "/verify"
	HealthPath       = "/health"
	ReloadConfigPath = "/reload-config"
	MetricsPath      = "/metrics"
)

// RealPath returns the absolute path with all symlinks resolved.
func RealPath(path string) (string, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return path, nil
}

// ClientIP returns the address of the client that made the request. The
// proxy in front of us sets X-Forwarded-For; when it holds a chain, the first
// entry is the original client.
func ClientIP(r *http.Request) string {
	return ClientIPFrom(r, ClientIPFirstForwarded)
}

// ClientIPFrom picks the client address according to source. The first
// X-Forwarded-For entry is whatever the client sent; the last one was
// appended by the proxy and can't be forged past it. Without a usable
// X-Forwarded-For entry the TCP peer address is used.
func ClientIPFrom(r *http.Request, source string) string {
	if source != ClientIPRemoteAddr {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			hops := strings.Split(strings.Join(xff, ","), ",")
			hop := hops[0]
			if source == ClientIPLastForwarded {
				hop = hops[len(hops)-1]
			}
			if hop = strings.TrimSpace(hop); hop != "" {
				return hop
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ReturnMessage(w http.ResponseWriter, statusCode int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(msg))
	if err != nil {
		log.Errorf("Failed to write body: %v", err)
	}
}

func ReturnJSONMessage(w http.ResponseWriter, statusCode int, jsonMsg interface{}) {
	jsonBytes, err := json.Marshal(jsonMsg)
	if err != nil {
		log.Errorf("Failed to marshal struct to json: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(jsonBytes)
	if err != nil {
		log.Errorf("Failed to write body: %v", err)
	}
}

func ResolvePathReference(u *url.URL, p string) *url.URL {
	ret := *u
	ret.Path = path.Join(ret.Path, p)
	return &ret
}

// DoRequest sends req with the HTTP client stored in ctx by TlsConfig, or
// with http.DefaultClient if there is none.
func DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := http.DefaultClient
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		client = c
	}
	return client.Do(req.WithContext(ctx))
}
