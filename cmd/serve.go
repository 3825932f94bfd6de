package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/chat"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/monitoring"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/server"
)

var (
	servePort    int
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve batch upload, filtering, summaries, question routing, streamed chat
and CSV export over HTTP. Without an anthropic key (or with --offline),
chat answers locally. When monitoring.webhook_url is set, newly saved
batches are checked against the risk thresholds and alerts are posted
to the webhook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		offline := serveOffline || cfg.Chat.Offline || cfg.Anthropic.Key == ""
		if offline {
			zap.L().Warn("chat model disabled, answering locally")
		}
		var responder chat.Responder
		if responder, err = newResponder(offline); err != nil {
			return err
		}

		router := newRouter()
		srv := server.New(st, responder, router, relevance.Filterer{MaxRecords: cfg.Filter.MaxRecords}, server.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			HistoryLimit:   cfg.Chat.HistoryLimit,
		})
		if hf, ok := router.HTTP.(*fetcher.HTTPFetcher); ok {
			srv.WithBreakers(hf.Breakers())
		}

		if cfg.Monitoring.Enabled() {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("offline_chat", offline))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "answer chat locally without calling the model")
	rootCmd.AddCommand(serveCmd)
}
