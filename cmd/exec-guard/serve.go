package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"exec-guard/internal/access"
	"exec-guard/internal/activity"
	"exec-guard/internal/approval"
	"exec-guard/internal/auth"
	"exec-guard/internal/config"
	"exec-guard/internal/gateway"
	"exec-guard/internal/handler"
	"exec-guard/internal/hub"
	"exec-guard/internal/middleware"
	"exec-guard/internal/server"
	"exec-guard/internal/store"
)

var patternsFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the gateway and serve the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&patternsFile, "patterns-file", "", "YAML file of restricted patterns to import at startup")
}

func serve(parent context.Context, cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	st := store.NewWithOptions(store.Options{StateFile: cfg.StateFile})
	if patternsFile != "" {
		n, err := st.ImportPatternsYAML(patternsFile)
		if err != nil {
			return err
		}
		log.Printf("imported %d restricted patterns from %s", n, patternsFile)
	}

	acc := access.NewFileProvider(cfg.AccessControlFile)
	wsHub := hub.New()
	notifier := hub.NewNotifier(wsHub)
	activityLog := activity.NewLogStore(activity.Options{Listener: notifier})

	client := gateway.NewClient(gateway.Options{
		URL:                  cfg.GatewayURL,
		Identity:             auth.IdentityFile{Path: cfg.DeviceIdentityFile},
		Token:                func() string { return cfg.GatewayToken },
		ClientVersion:        handler.Version,
		RequestTimeout:       cfg.RequestTimeout,
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
		Notifier:             notifier,
		Activity:             activityLog,
	})

	engine := approval.NewEngine(approval.Options{
		Gateway:          client,
		Store:            st,
		Access:           acc,
		Notifier:         notifier,
		Timeout:          cfg.ApprovalTimeout,
		ReconcileRetries: cfg.ReconcileRetries,
	})
	client.SetApprovalHandler(engine)

	if err := client.Connect(); err != nil {
		if !errors.Is(err, gateway.ErrNotConfigured) {
			return err
		}
		log.Printf("gateway: %v; run `exec-guard keygen` and set GATEWAY_TOKEN", err)
	}

	limiter := middleware.NewRateLimiter(60, time.Minute)
	defer limiter.Stop()

	router := server.NewRouter(server.Deps{
		Gateway:         client,
		Approvals:       engine,
		History:         st,
		Access:          acc,
		Activity:        activityLog,
		Hub:             wsHub,
		TokenConfig:     tokenConfig(cfg),
		DecisionLimiter: limiter,
	})

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("listening on %s", cfg.Addr())
	err := server.Run(ctx, cfg, router)

	client.Close()
	engine.Close()
	log.Printf("shut down")
	return err
}

func tokenConfig(cfg config.Config) auth.TokenConfig {
	tc := auth.DefaultTokenConfig(cfg.MasterSecret)
	tc.Expiry = cfg.TokenExpiry
	return tc
}
