package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
)

type dlqStore interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) error
}

// runDLQ handles `outbox-publisher dlq list [-limit n]` and
// `outbox-publisher dlq replay <event-id>...`.
func runDLQ(ctx context.Context, store dlqStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: dlq list|replay")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("dlq list", flag.ContinueOnError)
		fs.SetOutput(out)
		limit := fs.Int("limit", 50, "maximum entries to show")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		entries, err := store.List(ctx, *limit)
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		return printDLQ(out, entries)
	case "replay":
		if len(args) < 2 {
			return errors.New("usage: dlq replay <event-id>...")
		}
		for _, raw := range args[1:] {
			eventID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("event id %q: %w", raw, err)
			}
			if err := store.Replay(ctx, eventID); err != nil {
				return fmt.Errorf("replay %s: %w", eventID, err)
			}
			fmt.Fprintf(out, "requeued %s\n", eventID)
		}
		return nil
	default:
		return fmt.Errorf("unknown dlq command %q", args[0])
	}
}

func printDLQ(out io.Writer, entries []models.OutboxDLQ) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT ID\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, entry := range entries {
		message := ""
		if entry.ErrorMessage != nil {
			message = *entry.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			entry.EventID, entry.EventType, entry.ErrorReason, entry.AttemptCount,
			entry.FailedAt.UTC().Format(time.RFC3339), message)
	}
	return tw.Flush()
}
