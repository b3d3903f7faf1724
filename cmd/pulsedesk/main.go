package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pulsedesk/pulsedesk/internal/profile"
	"github.com/pulsedesk/pulsedesk/plugin/upstream"
	"github.com/pulsedesk/pulsedesk/server"
	"github.com/pulsedesk/pulsedesk/syncer"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "pulsedesk",
	Short: "Sync server for the pulsedesk dashboard",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:               viper.GetString("mode"),
			Addr:               viper.GetString("addr"),
			Port:               viper.GetInt("port"),
			Version:            version,
			SyncTTL:            viper.GetDuration("sync-ttl"),
			PreloadConcurrency: viper.GetInt64("preload-concurrency"),
			UpstreamBaseURL:    viper.GetString("upstream-url"),
			UpstreamToken:      viper.GetString("upstream-token"),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		client, err := upstream.NewClient(upstream.NewConfigFromProfile(instanceProfile))
		if err != nil {
			return err
		}

		s := syncer.New(syncer.Config[upstream.Item]{
			Source:             client,
			TTL:                instanceProfile.SyncTTL,
			PreloadConcurrency: instanceProfile.PreloadConcurrency,
			CountItem:          func(item upstream.Item) bool { return !item.Read },
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.NewServer(instanceProfile, s)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			srv.Shutdown(context.Background())
			return nil
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8230, "port of server")
	rootCmd.PersistentFlags().Duration("sync-ttl", 5*time.Minute, "freshness window for cached account collections")
	rootCmd.PersistentFlags().Int64("preload-concurrency", 8, "parallelism of the startup preload")
	rootCmd.PersistentFlags().String("upstream-url", "", "base URL of the workspace API")
	rootCmd.PersistentFlags().String("upstream-token", "", "bearer token for the workspace API")

	for _, flag := range []string{"mode", "addr", "port", "sync-ttl", "preload-concurrency", "upstream-url", "upstream-token"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("pulsedesk")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
