// Package ingest implements the length-framed TCP endpoint that accepts
// connections from the upstream ingester and fans decoded events out onto
// the bus.
package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"mercurystream/processor/internal/bus"
	"mercurystream/processor/internal/event"
	"mercurystream/processor/internal/framing"
	"mercurystream/processor/internal/logging"
	"mercurystream/processor/internal/recorder"
)

// Server accepts framed event connections and publishes each decoded event
// to Bus, optionally handing a copy to Recorder first.
type Server struct {
	Addr        string
	MaxFrameLen int
	Bus         *bus.Bus
	Recorder    *recorder.Recorder
	Log         *logging.Logger
}

// ListenAndServe binds Addr and accepts connections until ctx is canceled.
// Each connection is handled on its own goroutine.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = logging.L()
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info("ingest server listening", logging.String("addr", s.Addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		go s.handleConn(conn, log)
	}
}

// handleConn reads frames from conn until it closes or a fatal error
// occurs. Per-frame errors (oversized frame, bad JSON, non-object payload)
// are logged and the loop continues on the same connection, matching the
// source processor's behavior.
func (s *Server) handleConn(conn net.Conn, log *logging.Logger) {
	peer := conn.RemoteAddr().String()
	log.Info("client connected", logging.String("peer", peer))
	defer func() {
		conn.Close()
		log.Info("client disconnected", logging.String("peer", peer))
	}()

	maxFrameLen := s.MaxFrameLen
	if maxFrameLen <= 0 {
		maxFrameLen = framing.DefaultMaxFrameLen
	}
	reader := framing.NewReader(conn, maxFrameLen)

	for {
		payload, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, framing.ErrFrameTooLarge) {
				log.Warn("frame error", logging.Error(err))
				continue
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			log.Error("unexpected error reading frame", logging.Error(err))
			return
		}

		evt, err := event.Decode(payload)
		if err != nil {
			log.Warn("invalid event payload", logging.Error(err))
			continue
		}

		evt.SetRecvTSMillis(nowMillis())

		if s.Recorder != nil {
			s.Recorder.Record(evt)
		}
		s.Bus.Publish(evt)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
