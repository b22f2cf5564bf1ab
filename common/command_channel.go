/*
 *
 * xk6-headless - a headless page automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"sync"
	"time"
)

// commandChannel is a multi-producer, single-consumer FIFO of commands.
// Enqueue never blocks. Closing it fails every queued command with a
// channel closed error and rejects later enqueues.
type commandChannel struct {
	mu     sync.Mutex
	queue  []*command
	closed bool
	// wake has room for one pending signal; the consumer rechecks the queue
	// after every wake up.
	wake chan struct{}
}

func newCommandChannel() *commandChannel {
	return &commandChannel{wake: make(chan struct{}, 1)}
}

func (c *commandChannel) enqueue(cmd *command) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return newError(ErrorKindChannelClosed, cmd.params.name(), nil, "page is closed")
	}
	cmd.enqueued = time.Now()
	c.queue = append(c.queue, cmd)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// dequeue returns the next command, waiting at most wait for one. ok is
// false when no command arrived in time or the channel is closed.
func (c *commandChannel) dequeue(wait time.Duration) (*command, bool) {
	if cmd, ok := c.pop(); ok {
		return cmd, true
	}
	if wait <= 0 {
		return nil, false
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-c.wake:
	case <-t.C:
	}
	return c.pop()
}

func (c *commandChannel) pop() (*command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	cmd := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return cmd, true
}

func (c *commandChannel) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *commandChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close rejects the pending commands and returns how many there were. It is
// safe to call more than once.
func (c *commandChannel) close() int {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.closed = true
	c.mu.Unlock()

	for _, cmd := range pending {
		cmd.slot.fulfil(response{
			err: newError(ErrorKindChannelClosed, cmd.params.name(), nil, "page closed before the command ran"),
		})
	}
	return len(pending)
}
