/*
 * Copyright 2025 the whatstrax authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reqresp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/tracker"
)

// fakeConn answers round trips after an optional delay. release, when set,
// blocks the round trip until the test closes it.
type fakeConn struct {
	mu           sync.Mutex
	requests     []*Request
	disconnected bool
	err          error
	reject       bool
	release      chan struct{}
}

func (c *fakeConn) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	release := c.release
	err := c.err
	reject := c.reject
	c.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	if reject {
		return &Response{ID: req.ID, OK: false, Err: "not permitted"}, nil
	}

	return &Response{ID: req.ID, OK: true}, nil
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.disconnected
}

func (c *fakeConn) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.requests)
}

func TestAdapter_AckDeliveredOnTargetFeed(t *testing.T) {
	conn := &fakeConn{}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	req, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	select {
	case ev := <-feed:
		assert.Equal(t, req.ID, ev.ProbeID)
		assert.False(t, ev.ObservedAt.Before(req.SentAt))
	case <-time.After(time.Second):
		t.Fatal("ack was not delivered")
	}
}

func TestAdapter_RefusesToInterleave(t *testing.T) {
	conn := &fakeConn{release: make(chan struct{})}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	_, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	// First round trip still outstanding: the second send must fail fast
	// instead of queuing behind it.
	_, err = adapter.SendProbe(context.Background(), "bob")
	assert.ErrorIs(t, err, tracker.ErrAdapterBusy)

	close(conn.release)

	select {
	case <-feed:
	case <-time.After(time.Second):
		t.Fatal("first probe never resolved")
	}
}

func TestAdapter_InflightClearsAfterResponse(t *testing.T) {
	conn := &fakeConn{}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	_, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	select {
	case <-feed:
	case <-time.After(time.Second):
		t.Fatal("ack was not delivered")
	}

	_, err = adapter.SendProbe(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestAdapter_SendProbeWhileDisconnected(t *testing.T) {
	conn := &fakeConn{disconnected: true}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	_, err := adapter.SendProbe(context.Background(), "alice")
	assert.ErrorIs(t, err, tracker.ErrTransportUnavailable)
	assert.Zero(t, conn.requestCount())
}

func TestAdapter_TransportErrorProducesNoAck(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection reset")}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	_, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	select {
	case ev := <-feed:
		t.Fatalf("unexpected ack after transport error: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}

	// The slot is released so the next cycle can probe again.
	_, err = adapter.SendProbe(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestAdapter_RejectedRequestProducesNoAck(t *testing.T) {
	conn := &fakeConn{reject: true}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	_, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	select {
	case ev := <-feed:
		t.Fatalf("unexpected ack after rejection: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAdapter_ProbeDeadlineReleasesSlot(t *testing.T) {
	conn := &fakeConn{release: make(chan struct{})}
	defer close(conn.release)

	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	_, cancel := adapter.Subscribe("alice")
	defer cancel()

	ctx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancelProbe()

	_, err := adapter.SendProbe(ctx, "alice")
	require.NoError(t, err)

	// The gateway never answers; once the probe deadline passes the slot
	// must open for the next cycle instead of wedging the platform.
	deadline := time.Now().Add(time.Second)

	for {
		_, err = adapter.SendProbe(context.Background(), "alice")
		if err == nil {
			return
		}

		require.ErrorIs(t, err, tracker.ErrAdapterBusy)

		if time.Now().After(deadline) {
			t.Fatal("adapter slot never released after probe deadline")
		}

		time.Sleep(2 * time.Millisecond)
	}
}

func TestAdapter_ResponseForRemovedTargetIsDropped(t *testing.T) {
	conn := &fakeConn{release: make(chan struct{})}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")

	_, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	cancel()
	close(conn.release)

	select {
	case ev := <-feed:
		t.Fatalf("removed target received ack: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAdapter_RequestShape(t *testing.T) {
	conn := &fakeConn{}
	adapter := New(conn, tracker.RealClock(), logger.NewTestLogger())

	feed, cancel := adapter.Subscribe("alice")
	defer cancel()

	req, err := adapter.SendProbe(context.Background(), "alice")
	require.NoError(t, err)

	select {
	case <-feed:
	case <-time.After(time.Second):
		t.Fatal("ack was not delivered")
	}

	require.Equal(t, 1, conn.requestCount())
	sent := conn.requests[0]
	assert.Equal(t, req.ID, sent.ID)
	assert.Equal(t, RequestKindReceipt, sent.Kind)
	assert.Equal(t, "alice", sent.Target)
}
