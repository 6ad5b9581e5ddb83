package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/connection"
	"github.com/fanlink/fanlink-go/pkg/transport"
)

var (
	watchDuration  time.Duration
	watchReconnect bool
	watchRetries   int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print notifications as they arrive",
	Long: `Authenticate, then print every notification until interrupted or until
--duration elapses. With --reconnect a dropped connection is redialled with
exponential backoff and authenticated again.

Example:
  fanlink-ctl --addr fan.local:7420 watch --duration 1m
  fanlink-ctl --device fan-01 watch --reconnect --retries 10`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	watchCmd.Flags().BoolVar(&watchReconnect, "reconnect", false, "Redial when the connection drops")
	watchCmd.Flags().IntVar(&watchRetries, "retries", 0, "Give up after this many failed redials (0 = never)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if watchDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, watchDuration)
		defer stop()
	}

	var b *connection.Backoff
	if watchReconnect {
		b = connection.NewBackoff(connection.BackoffConfig{MaxAttempts: watchRetries})
	}
	total, err := watchLoop(ctx, b, func(ctx context.Context) (*transport.Client, string, error) {
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return openClient(connectCtx)
	}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	fmt.Fprintf(cmd.ErrOrStderr(), "%d notifications\n", total)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type clientOpener func(ctx context.Context) (*transport.Client, string, error)

// watchLoop watches one connection at a time until ctx is done. Without a
// backoff it returns when the first connection closes.
func watchLoop(ctx context.Context, b *connection.Backoff, open clientOpener, out, status io.Writer) (int, error) {
	type conn struct {
		c    *transport.Client
		info string
	}
	openConn := func(ctx context.Context) (conn, error) {
		c, info, err := open(ctx)
		return conn{c, info}, err
	}

	total := 0
	for {
		var (
			cur conn
			err error
		)
		if b == nil {
			cur, err = openConn(ctx)
		} else {
			cur, err = connection.Retry(ctx, b, openConn, func(err error, wait time.Duration) {
				fmt.Fprintf(status, "connect failed: %v (retrying in %s)\n", err, wait.Round(time.Millisecond))
			})
		}
		if err != nil {
			return total, err
		}

		fmt.Fprintf(status, "Watching %s (Ctrl+C to stop)\n", cur.info)
		total += watch(ctx, cur.c, out)
		cur.c.Close()

		if ctx.Err() != nil || b == nil {
			return total, nil
		}
		fmt.Fprintln(status, "connection lost")
	}
}

// watch prints notifications until ctx is done or the connection closes and
// returns how many were printed.
func watch(ctx context.Context, c *transport.Client, w io.Writer) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case note, ok := <-c.Notifications():
			if !ok {
				return n
			}
			fmt.Fprintf(w, "[%s] %s %s\n", time.Now().Format("15:04:05.000"), note.Char, formatValue(note.Char, note.Value))
			n++
		}
	}
}
