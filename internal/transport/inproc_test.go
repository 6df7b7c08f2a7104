package transport

import (
	"context"
	"testing"
	"time"

	"menusync/internal/protocol"
)

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan Event, d time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v for %s", ev.Kind, ev.Peer)
	case <-time.After(d):
	}
}

func startEndpoints(t *testing.T, ids ...string) (*Switchboard, map[string]*Endpoint) {
	t.Helper()
	sw := NewSwitchboard()
	eps := make(map[string]*Endpoint, len(ids))
	for _, id := range ids {
		ep := sw.Endpoint(id)
		if err := ep.Start(context.Background()); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		t.Cleanup(func() { _ = ep.Close() })
		eps[id] = ep
	}
	return sw, eps
}

func TestInproc_ConnectOpensBothSides(t *testing.T) {
	_, eps := startEndpoints(t, "a", "b")

	eps["a"].Connect("b")

	evA := nextEvent(t, eps["a"].Events())
	evB := nextEvent(t, eps["b"].Events())

	if evA.Kind != EventOpen || evA.Peer != "b" || evA.Conn.Direction() != Outgoing {
		t.Errorf("Expected outgoing open to b, got %+v", evA)
	}
	if evB.Kind != EventOpen || evB.Peer != "a" || evB.Conn.Direction() != Incoming {
		t.Errorf("Expected incoming open from a, got %+v", evB)
	}
}

func TestInproc_SendDeliversToRemote(t *testing.T) {
	_, eps := startEndpoints(t, "a", "b")

	eps["a"].Connect("b")
	evA := nextEvent(t, eps["a"].Events())
	nextEvent(t, eps["b"].Events())

	stamp := time.Now()
	if err := evA.Conn.Send(protocol.Message{Type: protocol.MsgPing, Time: stamp, From: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	data := nextEvent(t, eps["b"].Events())
	if data.Kind != EventData || data.Peer != "a" {
		t.Fatalf("Expected data event from a, got %+v", data)
	}
	if data.Msg.Type != protocol.MsgPing || !data.Msg.Time.Equal(stamp) {
		t.Errorf("Expected ping with original stamp, got %+v", data.Msg)
	}
}

func TestInproc_CloseNotifiesRemoteOnly(t *testing.T) {
	_, eps := startEndpoints(t, "a", "b")

	eps["a"].Connect("b")
	evA := nextEvent(t, eps["a"].Events())
	evB := nextEvent(t, eps["b"].Events())

	_ = evA.Conn.Close()

	closed := nextEvent(t, eps["b"].Events())
	if closed.Kind != EventClosed || closed.Peer != "a" || closed.Conn != evB.Conn {
		t.Errorf("Expected close for a's connection at b, got %+v", closed)
	}

	// The closing side gets no event for its own close.
	expectNoEvent(t, eps["a"].Events(), 100*time.Millisecond)

	if err := evA.Conn.Send(protocol.Message{Type: protocol.MsgPing}); err == nil {
		t.Error("Expected send on closed connection to fail")
	}
}

func TestInproc_ConnectUnknownPeerErrors(t *testing.T) {
	_, eps := startEndpoints(t, "a")

	eps["a"].Connect("nope")

	ev := nextEvent(t, eps["a"].Events())
	if ev.Kind != EventError || ev.Peer != "nope" || ev.Err == nil {
		t.Errorf("Expected error event for unknown peer, got %+v", ev)
	}
}

func TestInproc_EndpointCloseNotifiesPeers(t *testing.T) {
	_, eps := startEndpoints(t, "a", "b")

	eps["a"].Connect("b")
	nextEvent(t, eps["a"].Events())
	nextEvent(t, eps["b"].Events())

	_ = eps["b"].Close()

	closed := nextEvent(t, eps["a"].Events())
	if closed.Kind != EventClosed || closed.Peer != "b" {
		t.Errorf("Expected close event for b at a, got %+v", closed)
	}
}
