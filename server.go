// Copyright © 2019 Arrikto Inc.  All Rights Reserved.

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/arrikto/simpleauth/common"
	"github.com/arrikto/simpleauth/credentials"
	"github.com/arrikto/simpleauth/limiter"
	"github.com/arrikto/simpleauth/logger"
	"github.com/arrikto/simpleauth/metrics"
	"github.com/gorilla/mux"
	"github.com/tevino/abool"
	"k8s.io/apiserver/pkg/authentication/authenticator"
	"k8s.io/apiserver/pkg/authentication/user"
)

const (
	healthMessage = "Simple Auth Server is running"
	// maxReloadBodyBytes bounds the body read while looking for the secret.
	maxReloadBodyBytes = 64 * 1024
)

type server struct {
	store                  *credentials.Store
	authenticators         []authenticator.Request
	guard                  *limiter.Guard
	reloadSecret           common.ProtectedString
	// clientIPSource selects the address failures are tracked by.
	clientIPSource         string
	upstreamHTTPHeaderOpts httpHeaderOpts
	metrics                *metrics.Metrics
}

// httpHeaderOpts specifies the location of the user's identity inside HTTP
// headers.
type httpHeaderOpts struct {
	userIDHeader string
	userIDPrefix string
}

type reloadResponse struct {
	LoadedUsers int `json:"loaded_users"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) router() *mux.Router {
	router := mux.NewRouter()
	// The proxy may probe with any method, so /verify doesn't filter them.
	router.HandleFunc(common.VerifyPath, s.verify)
	router.HandleFunc(common.HealthPath, s.health).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc(common.ReloadConfigPath, s.reloadConfig).Methods(http.MethodGet, http.MethodPost)
	return router
}

// verify is the forward-auth endpoint. It answers 200 with the identity
// header or 401 with no reason attached.
func (s *server) verify(w http.ResponseWriter, r *http.Request) {
	logger := logger.ForRequest(r)
	client := common.ClientIPFrom(r, s.clientIPSource)

	var userInfo user.Info
	for i, auth := range s.authenticators {
		resp, found, err := auth.AuthenticateRequest(r)
		if err != nil {
			logger.Errorf("Error authenticating request using authenticator %d: %v", i, err)
		}
		if found {
			userInfo = resp.User
			break
		}
	}

	if userInfo == nil {
		s.metrics.ObserveVerification(false)
		if s.guard != nil {
			delay := s.guard.Fail(r.Context(), client)
			if err := limiter.Sleep(r.Context(), delay); err != nil {
				logger.Debugf("Client went away during backoff: %v", err)
			}
		}
		logger.Debug("Request denied")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if s.guard != nil {
		s.guard.Succeed(r.Context(), client)
	}
	s.metrics.ObserveVerification(true)
	logger.WithField("user", userInfo.GetName()).Debug("Request allowed")
	for k, v := range userInfoToHeaders(userInfo, &s.upstreamHTTPHeaderOpts) {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
}

// health reports process liveness only. It doesn't look at the store.
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	common.ReturnMessage(w, http.StatusOK, healthMessage)
}

// reloadConfig re-reads the credential file, after checking the reload
// secret if one is configured.
func (s *server) reloadConfig(w http.ResponseWriter, r *http.Request) {
	logger := logger.ForRequest(r)

	if !authorizeReload(reloadSecretFromRequest(r), s.reloadSecret) {
		logger.Warn("Rejected credential reload: wrong or missing secret")
		s.metrics.ObserveReload(metrics.ReloadForbidden, 0)
		common.ReturnJSONMessage(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}

	n, err := s.reload()
	if err != nil {
		logger.Errorf("Credential reload failed: %v", err)
		common.ReturnJSONMessage(w, http.StatusInternalServerError,
			errorResponse{Error: "failed to reload credentials"})
		return
	}
	logger.Infof("Credential reload complete, %d credentials loaded", n)
	common.ReturnJSONMessage(w, http.StatusOK, reloadResponse{LoadedUsers: n})
}

// reload is shared by the HTTP endpoint and the file watcher.
func (s *server) reload() (int, error) {
	n, err := s.store.Reload()
	if err != nil {
		s.metrics.ObserveReload(metrics.ReloadFailure, 0)
		return 0, err
	}
	s.metrics.ObserveReload(metrics.ReloadSuccess, n)
	return n, nil
}

// authorizeReload lets a reload through when no secret is configured, or when
// the supplied secret matches the configured one exactly. An unset secret
// leaves the endpoint open on purpose; main warns about it at startup.
func authorizeReload(supplied string, configured common.ProtectedString) bool {
	if !configured.IsSet() {
		return true
	}
	return configured.Equal(supplied)
}

// reloadSecretFromRequest looks for the secret in the "secret" query
// parameter and, for POST requests, in a JSON body or a form body.
func reloadSecretFromRequest(r *http.Request) string {
	query := r.URL.Query()
	if query.Has("secret") {
		return query.Get("secret")
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReloadBodyBytes))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload.Secret
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	return form.Get("secret")
}

func userInfoToHeaders(info user.Info, opts *httpHeaderOpts) map[string]string {
	return map[string]string{
		opts.userIDHeader: opts.userIDPrefix + info.GetName(),
	}
}

// readiness is the handler that checks if the authservice is ready for serving
// requests. It turns ready once the initial credential load succeeded.
func readiness(isReady *abool.AtomicBool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusOK
		if !isReady.IsSet() {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
	}
}
