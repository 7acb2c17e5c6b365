package client

import (
	"context"
	"fmt"
)

// StartListening acquires long-poll routing and resets the message
// cursor. It must be called before DoOneListen; Listen calls it
// itself.
func (c *Client) StartListening(ctx context.Context) error {
	c.session.SetSeq("0")
	if err := c.channel.AcquireRoute(ctx); err != nil {
		return fmt.Errorf("acquiring channel route: %w", err)
	}
	c.listening = true
	c.listenLog.Info("listening started",
		"sticky", c.session.Sticky, "pool", c.session.Pool)
	return nil
}

// StopListening ends the listening session and discards the routing
// tokens and cursor.
func (c *Client) StopListening() {
	c.listening = false
	c.session.Sticky = ""
	c.session.Pool = ""
	c.session.SetSeq("0")
	c.listenLog.Info("listening stopped")
}

// DoOneListen runs a single listen tick: an optional presence ping,
// one long-poll, and dispatch of whatever arrived. Transport errors
// are logged and swallowed so the loop can try again; the tick only
// reports false when listening has been stopped or the context is
// done.
func (c *Client) DoOneListen(ctx context.Context, markAlive bool) bool {
	if !c.listening {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	if markAlive {
		// Presence is best effort; a failed ping never aborts the tick.
		if err := c.channel.Ping(ctx); err != nil {
			c.listenLog.Debug("presence ping failed", "error", err)
		}
	}

	envelope, err := c.channel.Pull(ctx)
	if err != nil {
		// Only the listen context distinguishes an interrupt from an
		// ordinary long-poll timeout; since Go 1.16 a client timeout
		// also satisfies errors.Is(err, context.DeadlineExceeded).
		if ctx.Err() != nil {
			return false
		}
		c.listenLog.Warn("pull failed", "error", err)
		return true
	}

	for _, ev := range c.normalizer.NormalizeAll(envelope.Events) {
		c.dispatcher.Publish(ev)
	}
	return true
}

// Listen runs the blocking listen loop until the context is canceled
// or StopListening is called from a handler. Cancellation is only
// observed between ticks; an in-flight long-poll is allowed to
// finish.
func (c *Client) Listen(ctx context.Context, markAlive bool) error {
	if err := c.StartListening(ctx); err != nil {
		return err
	}
	defer c.StopListening()

	for c.listening {
		// Pace the loop so a server answering instantly with errors
		// cannot turn it into a hot spin.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		if !c.DoOneListen(ctx, markAlive) {
			break
		}
	}
	return nil
}
