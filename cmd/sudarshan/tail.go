package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sudarshan/internal/cache/redis"
	"github.com/alanyoungcy/sudarshan/internal/config"
	"github.com/alanyoungcy/sudarshan/internal/domain"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print messages published on a Redis channel (ticks or verdicts)",
		RunE:  runTail,
	}
	cmd.Flags().String("channel", domain.ChannelTicks, "channel to follow: ticks or verdicts")
	cmd.Flags().String("redis-addr", "", "override redis.addr")
	return cmd
}

func runTail(cmd *cobra.Command, _ []string) error {
	channel, _ := cmd.Flags().GetString("channel")
	if channel != domain.ChannelTicks && channel != domain.ChannelVerdicts {
		return fmt.Errorf("tail: unknown channel %q", channel)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("redis-addr"); addr != "" {
		cfg.Redis.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   1,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}
	defer client.Close()

	msgs, err := redis.NewSignalBus(client).Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}
	for msg := range msgs {
		fmt.Fprintln(cmd.OutOrStdout(), string(msg))
	}
	return nil
}
