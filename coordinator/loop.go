package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Run drives the poll loop until ctx is cancelled: every tick advances each
// registered job once. A tick that blows up is logged and followed by a longer
// backoff instead of crashing the process. Detached analyses started before
// shutdown keep running; join them with Wait.
func (c *TaskCoordinator) Run(ctx context.Context) {
	log.Printf("[Coordinator] poll loop started (interval %s)", c.pollInterval)
	for {
		delay := c.pollInterval
		if err := c.tick(ctx); err != nil {
			log.Printf("[Coordinator] tick failed: %v", err)
			delay = c.errorBackoff
		}

		select {
		case <-ctx.Done():
			log.Printf("[Coordinator] poll loop stopped")
			return
		case <-time.After(delay):
		}
	}
}

func (c *TaskCoordinator) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	for _, meetingID := range c.Pending() {
		c.CheckAndProcess(ctx, meetingID)
	}
	return nil
}
