// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Command ringsd runs a single rings DHT node: it owns one identity, one
// Chord ring, and the swarm of WebRTC transports that back it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringmesh/rings/config"
	sagecrypto "github.com/ringmesh/rings/crypto"
	"github.com/ringmesh/rings/crypto/keys"
	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/handler"
	"github.com/ringmesh/rings/health"
	_ "github.com/ringmesh/rings/internal/cryptoinit"
	"github.com/ringmesh/rings/internal/logger"
	"github.com/ringmesh/rings/internal/metrics"
	"github.com/ringmesh/rings/pkg/version"
	"github.com/ringmesh/rings/session"
	"github.com/ringmesh/rings/swarm"
	"github.com/ringmesh/rings/transport"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "ringsd",
	Short: "rings DHT node daemon",
	Long: `ringsd runs one node of a rings overlay: it joins (or starts) a
Chord-style DHT over authenticated WebRTC data channels, serving payload
dispatch, ring maintenance, and optional health/metrics HTTP endpoints.`,
	RunE: runNode,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		version.PrintVersion()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing config files (default: ./config)")
	rootCmd.AddCommand(versionCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if errs := config.ValidateConfiguration(cfg); len(errs) > 0 {
		for _, e := range errs {
			if e.Level == "error" {
				return fmt.Errorf("config: %s: %s", e.Field, e.Message)
			}
		}
	}

	log := newLogger(cfg.Logging)
	logger.SetDefaultLogger(log)

	id, err := loadOrGenerateIdentity(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info("node identity ready", logger.String("did", id.Did().Hex()))

	iceServers, err := transport.ParseICEServerURLs(cfg.ICE.Servers)
	if err != nil {
		return fmt.Errorf("parse ICE servers: %w", err)
	}

	ring := dht.NewPeerRing(id.Did())
	sw := swarm.New(id, log)
	h := handler.New(ring, sw, iceServers, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Node.Bootstrap != "" {
		bootstrap, err := dht.ParseDid(cfg.Node.Bootstrap)
		if err != nil {
			return fmt.Errorf("parse bootstrap did: %w", err)
		}
		if _, ok := sw.Transport(bootstrap); !ok {
			log.Warn("bootstrap configured but no transport to it is registered yet; starting solo until one is connected out of band")
		} else if err := h.Join(ctx, bootstrap); err != nil {
			return fmt.Errorf("join via bootstrap %s: %w", bootstrap.Hex(), err)
		} else {
			log.Info("joined ring", logger.String("bootstrap", bootstrap.Hex()))
		}
	}

	checker := newHealthChecker(ring, sw)
	checker.SetLogger(log)
	stopMetrics := maybeStartHTTP(cfg.Metrics.Enabled, cfg.Metrics.Addr, cfg.Metrics.Path, metrics.Handler(), log, "metrics")
	stopHealth := maybeStartHTTP(cfg.Health.Enabled, cfg.Health.Addr, cfg.Health.Path, healthHandler(checker), log, "health")
	defer stopMetrics()
	defer stopHealth()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go h.Run(ctx, cfg.DHT.StabilizeInterval, cfg.DHT.FixFingersInterval)

	serveErr := make(chan error, 1)
	go func() { serveErr <- h.Serve(ctx) }()

	select {
	case sig := <-sigCh:
		log.Info("shutting down", logger.String("signal", sig.String()))
		cancel()
		<-serveErr
	case err := <-serveErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	return nil
}

// loadOrGenerateIdentity loads a PEM-encoded secp256k1 identity key from
// path, generating and persisting a fresh one if path does not exist.
func loadOrGenerateIdentity(path string) (*session.Identity, error) {
	mgr := sagecrypto.NewManager()

	data, err := os.ReadFile(path)
	if err == nil {
		idKey, err := mgr.ImportKeyPair(data, sagecrypto.KeyFormatPEM)
		if err != nil {
			return nil, fmt.Errorf("import identity key from %s: %w", path, err)
		}
		return session.NewIdentityFromKeyPair(idKey)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	idKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	exported, err := mgr.ExportKeyPair(idKey, sagecrypto.KeyFormatPEM)
	if err != nil {
		return nil, fmt.Errorf("export identity key: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, exported, 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return session.NewIdentityFromKeyPair(idKey)
}

func newLogger(cfg *config.LoggingConfig) *logger.StructuredLogger {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "stdout", "":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = f
		}
	}

	level := logger.InfoLevel
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG":
		level = logger.DebugLevel
	case "WARN":
		level = logger.WarnLevel
	case "ERROR":
		level = logger.ErrorLevel
	}

	l := logger.NewLogger(out, level)
	l.SetPrettyPrint(cfg.Format == "text")
	return l
}

func newHealthChecker(ring *dht.PeerRing, sw *swarm.Swarm) *health.HealthChecker {
	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("ring_successor", health.RingSuccessorHealthCheck(func(context.Context) error {
		if ring.Successor().IsZero() {
			return fmt.Errorf("ring has no successor")
		}
		return nil
	}))
	checker.RegisterCheck("swarm_transports", health.SwarmTransportHealthCheck(func(context.Context) error {
		return nil
	}))
	checker.RegisterCheck("inbound_queue", health.InboundQueueHealthCheck(func(ctx context.Context) error {
		if sw.InboundQueueDepth() > 200 {
			return fmt.Errorf("inbound queue backlogged: %d", sw.InboundQueueDepth())
		}
		return nil
	}))
	return checker
}

func healthHandler(checker *health.HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		sys := checker.GetSystemHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if sys.Status == health.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(sys)
	})
	return mux
}

// maybeStartHTTP starts an HTTP server for handler at path under addr if
// enabled, returning a no-op stop func when it is not.
func maybeStartHTTP(enabled bool, addr, path string, h http.Handler, log logger.Logger, name string) func() {
	if !enabled {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("starting HTTP endpoint", logger.String("name", name), logger.String("addr", addr), logger.String("path", path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("HTTP endpoint stopped", logger.String("name", name), logger.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
