// Copyright © 2019 Arrikto Inc.  All Rights Reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arrikto/simpleauth/authenticators"
	"github.com/arrikto/simpleauth/client"
	"github.com/arrikto/simpleauth/common"
	"github.com/arrikto/simpleauth/credentials"
	"github.com/arrikto/simpleauth/limiter"
	"github.com/arrikto/simpleauth/logger"
	"github.com/arrikto/simpleauth/metrics"
	"github.com/arrikto/simpleauth/watcher"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tevino/abool"
	"k8s.io/apiserver/pkg/authentication/authenticator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "simpleauth",
		Short: "Forward-auth verifier for bearer digests",
		Long: "simpleauth answers forward-auth requests from a reverse proxy. Clients send\n" +
			"Authorization: Bearer <sha256 hex of user:token>; known digests get a 200 and\n" +
			"an identity header, everything else a 401.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.AddCommand(newServeCommand(), newDigestCommand(), newReloadCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the verification service (configured through the environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newDigestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest USER [TOKEN]",
		Short: "Print the bearer digest a client has to present",
		Long: "Print the bearer digest for a credential file line USER:TOKEN.\n" +
			"Without TOKEN, the token is read from the first line of stdin.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := args[0]
			var token string
			if len(args) == 2 {
				token = args[1]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.Wrap(err, "reading token from stdin")
				}
				token = strings.TrimRight(line, "\r\n")
			}
			if user == "" || token == "" {
				return errors.New("user and token must not be empty")
			}
			fmt.Fprintln(cmd.OutOrStdout(), credentials.Digest(user, token))
			return nil
		},
	}
}

func newReloadCommand() *cobra.Command {
	var (
		serviceURL string
		secret     string
		caBundle   string
		retries    uint64
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running service to reload its credential file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bundle []byte
			if caBundle != "" {
				var err error
				bundle, err = os.ReadFile(caBundle)
				if err != nil {
					return errors.Wrapf(err, "reading CA bundle %s", caBundle)
				}
			}
			c, err := client.New(serviceURL, bundle)
			if err != nil {
				return err
			}
			c.Retries = retries
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			n, err := c.Reload(ctx, secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded_users: %d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceURL, "url", "http://localhost:8080", "base URL of the service")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("RELOAD_SECRET"), "reload secret (defaults to $RELOAD_SECRET)")
	cmd.Flags().StringVar(&caBundle, "ca-bundle", "", "PEM CA bundle for https URLs")
	cmd.Flags().Uint64Var(&retries, "retries", 2, "retries after connection errors or 5xx answers")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func serve() error {

	c, err := common.ParseConfig()
	if err != nil {
		log.Fatalf("Failed to parse configuration: %+v", err)
	}
	logger.Setup(c.LogrusLevel())
	log.Infof("Config: %+v", c)
	if !c.ReloadSecret.IsSet() {
		log.Warn("RELOAD_SECRET is not set: anyone who can reach " +
			common.ReloadConfigPath + " can trigger a credential reload")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Start readiness probe immediately
	log.Infof("Starting readiness probe at %v", c.ReadinessProbePort)
	isReady := abool.New()
	probeRouter := mux.NewRouter()
	probeRouter.Handle(common.MetricsPath, metrics.Handler(registry))
	probeRouter.PathPrefix("/").Handler(readiness(isReady))
	go func() {
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", c.ReadinessProbePort), probeRouter))
	}()

	// Serving without credentials is never an option.
	store, err := credentials.NewStore(c.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	m.SetLoaded(store.Count())

	var guard *limiter.Guard
	if c.BruteForceProtection {
		tracker, err := newFailureTracker(ctx, c)
		if err != nil {
			log.Fatalf("Error creating failure tracker: %v", err)
		}
		guard = &limiter.Guard{
			Tracker: tracker,
			Backoff: limiter.Backoff{Base: c.BackoffBase, Max: c.BackoffMax},
		}
	} else {
		log.Warn("Brute-force protection is disabled")
	}

	s := &server{
		store: store,
		authenticators: []authenticator.Request{
			authenticators.NewBearerDigestAuthenticator(c.AuthHeader, store),
		},
		guard:          guard,
		reloadSecret:   c.ReloadSecret,
		clientIPSource: c.ClientIPSource,
		upstreamHTTPHeaderOpts: httpHeaderOpts{
			userIDHeader: c.UserIDHeader,
			userIDPrefix: c.UserIDPrefix,
		},
		metrics: m,
	}

	if c.WatchConfigFile {
		w, err := watcher.New(c.CredentialsFile, s.reload)
		if err != nil {
			log.Fatalf("Error watching credential file: %v", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Errorf("Credential file watcher stopped: %v", err)
			}
		}()
	}

	var handler http.Handler = s.router()
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(handler)
	if c.AccessLog {
		handler = handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), handler)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", c.Hostname, c.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down server: %v", err)
		}
	}()

	// Setup complete, mark server ready
	isReady.Set()
	log.Infof("Starting server at %v:%v", c.Hostname, c.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	return nil
}

func newFailureTracker(ctx context.Context, c *common.Config) (limiter.FailureTracker, error) {
	switch c.FailureStoreType {
	case common.FailureStoreRedis:
		log.Infof("Tracking failed attempts in Redis at %s", c.FailureStoreRedisAddr)
		return limiter.NewRedisTrackerFromAddr(ctx, c.FailureStoreRedisAddr,
			c.FailureStoreRedisPWD.Reveal(), c.FailureStoreRedisDB, c.FailureWindow)
	default:
		return limiter.NewMemoryTracker(c.FailureWindow), nil
	}
}
