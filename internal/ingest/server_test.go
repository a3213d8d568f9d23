package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/framing"
	"mercurystream/processor/internal/logging"
)

func TestServerPublishesDecodedEvents(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close() // release the port; Server rebinds it via ListenConfig

	b := bus.New()
	sub := b.Subscribe(10)

	s := &Server{Addr: ln.Addr().String(), Bus: b, Log: logging.NewTestLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	// Give the listener a moment to bind before dialing.
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", s.Addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	evt := event.Event{"type": "match", "product_id": "BTC-USD", "price": 1.0, "last_size": 1.0, "time": "2026-01-01T00:00:00Z", "ingest_ts_ms": 1}
	payload, err := evt.Encode()
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	framed, err := framing.Encode(payload, 0)
	if err != nil {
		t.Fatalf("frame event: %v", err)
	}
	if _, err := conn.Write(framed); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case got := <-sub:
		if got.ProductID() != "BTC-USD" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if _, ok := got.RecvTSMillis(); !ok {
			t.Fatal("expected recv_ts_ms to be stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
