package remotehttp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

// Subscribe connects to a websocket change-notification stream and refetches
// the authoritative value whenever any frame arrives. Frame contents are not
// interpreted: the stream signals "something changed", the GET endpoint
// remains the single source of truth for the value itself.
//
// Blocks until ctx is canceled (returns nil) or the stream fails (returns
// the error). Reconnect policy is the caller's: a loop around Subscribe with
// its own backoff.
func (c *Client[T]) Subscribe(ctx context.Context, wsURL string) error {
	if c.fetchURL == "" {
		return ErrNoFetchURL
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.hc,
	})
	if err != nil {
		return fmt.Errorf("remotehttp: dialing notification stream %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.logger.Info("notification stream connected", slog.String("url", wsURL))

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("remotehttp: notification stream read: %w", err)
		}

		c.logger.Debug("change notification received", slog.String("url", wsURL))

		if err := c.Fetch(ctx); err != nil {
			c.logger.Warn("fetch after notification failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
