package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"impractical.co/dropper/hostapi"
	"impractical.co/dropper/memory"
	"yall.in"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Example: "$ dropper serve --addr :8080",
		Short:   "Serve the host's object and file endpoints",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func runServe(a *app, addr string) error {
	ctx := a.ctx
	platform, err := newPlatform(ctx, a.settings)
	if err != nil {
		return err
	}
	baseURL, stop, err := startHost(ctx, platform, addr)
	if err != nil {
		return err
	}
	defer stop()
	fmt.Fprintf(a.out, "serving %s\n", baseURL)
	<-ctx.Done()
	return nil
}

// startHost serves platform's endpoints on addr until the returned stop
// function is called.
func startHost(ctx context.Context, platform *memory.Platform, addr string) (string, func(), error) {
	log := yall.FromContext(ctx)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("error listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           hostapi.Routes(hostapi.NewHandler(platform, platform.Documents(), log)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("[cli] host endpoint stopped")
		}
	}()
	log.WithField("cli.addr", ln.Addr().String()).Debug("[cli] host endpoint listening")

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("[cli] error shutting down host endpoint")
		}
	}
	return "http://" + ln.Addr().String(), stop, nil
}
