package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	c.SessionRejected()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSessions())
	}
	if c.RejectedSessions() != 1 {
		t.Errorf("rejected = %d, want 1", c.RejectedSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_Broadcasts(t *testing.T) {
	c := New()

	c.MessageBroadcast(3, 0)
	c.MessageBroadcast(2, 1)

	if c.Messages() != 2 {
		t.Errorf("messages = %d, want 2", c.Messages())
	}
	if c.Deliveries() != 5 {
		t.Errorf("deliveries = %d, want 5", c.Deliveries())
	}
	if c.DeliveryFailures() != 1 {
		t.Errorf("failures = %d, want 1", c.DeliveryFailures())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SessionOpened()
			c.MessageBroadcast(1, 0)
			c.SessionClosed()
		}()
	}
	wg.Wait()

	if c.ActiveSessions() != 0 || c.TotalSessions() != 50 || c.Deliveries() != 50 {
		t.Errorf("got active=%d total=%d deliveries=%d",
			c.ActiveSessions(), c.TotalSessions(), c.Deliveries())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesReceived(100)
	c.MessageBroadcast(4, 1)
	c.RecordError("accept: too many open files")

	snap := c.Snapshot()
	if snap.SessionsActive != 1 {
		t.Errorf("snap active = %d", snap.SessionsActive)
	}
	if snap.BytesIn != 100 {
		t.Errorf("snap bytes in = %d", snap.BytesIn)
	}
	if snap.Deliveries != 4 || snap.DeliveryFailures != 1 {
		t.Errorf("snap deliveries = %d/%d", snap.Deliveries, snap.DeliveryFailures)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "accept: too many open files" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionOpened()
	c.SessionClosed()
	c.SessionRejected()
	c.MessageBroadcast(1, 1)
	c.BytesReceived(100)
	c.BytesSent(100)
	c.RecordError("test")

	if c.ActiveSessions() != 0 || c.Messages() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	if snap := c.Snapshot(); snap.SessionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
