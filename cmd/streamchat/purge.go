package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/corvidlabs/streamchat/internal/eventlog"
)

// purgeCmd is the small maintenance utility spec.md's Event Log section
// calls for: deleting a conversation's stream and meta ahead of their
// TTL horizon, for an operator cleaning up after a known-bad stream.
func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <conversation-id>",
		Short: "Delete a conversation's event stream and meta record ahead of its TTL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context(), args[0])
		},
	}
}

func runPurge(ctx context.Context, conversationID string) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.WriterAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	log := eventlog.NewRedisLog(client, client, cfg.Redis.StreamTTL)
	if err := log.Purge(ctx, conversationID); err != nil {
		return fmt.Errorf("purge conversation %s: %w", conversationID, err)
	}
	fmt.Printf("purged stream and meta for conversation %s\n", conversationID)
	return nil
}
