package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/rover"
)

const Transport = "ws"

// Server accepts one RUN per connection and streams a STEP per path log token,
// then a RESULT (or ERROR) and a normal close.
type Server struct {
	svc *driver.Service
	log *log.Logger

	queue        int
	writeTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(svc *driver.Service, logger *log.Logger) *Server {
	lim := svc.Tuning().Server
	queue := lim.StreamQueue
	if queue <= 0 {
		queue = 64
	}
	wt := time.Duration(lim.WriteTimeoutMs) * time.Millisecond
	if wt <= 0 {
		wt = 5 * time.Second
	}
	return &Server{
		svc:          svc,
		log:          logger,
		queue:        queue,
		writeTimeout: wt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		run, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, s.queue)
		writerDone := make(chan struct{})

		// Writer goroutine. After a write error it keeps draining so producers never block.
		go func() {
			defer close(writerDone)
			failed := false
			for b := range out {
				if failed {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					failed = true
					cancel()
				}
			}
		}()

		// Reader: the client has nothing more to say; a read error means it went away.
		go func() {
			_ = conn.SetReadDeadline(time.Time{})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		runID := uuid.NewString()
		rep, err := s.svc.Run(ctx, driver.RunRequest{
			Transport: Transport,
			Mission:   run.Mission,
			MaxSteps:  run.MaxSteps,
			RunID:     runID,
			Observer:  &streamSink{ctx: ctx, runID: runID, out: out},
		})

		var final any
		if err != nil {
			final = protocol.NewError(run.ReqID, driver.ErrorCode(err), err.Error())
			if s.log != nil && rep.RunID != "" {
				s.log.Printf("ws run %s: %v", rep.RunID, err)
			}
		} else {
			final = rep.ResultMsg(run.ReqID)
		}
		if b, err := json.Marshal(final); err == nil {
			out <- b
		}
		close(out)
		<-writerDone

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.RunMsg, bool) {
	var run protocol.RunMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return run, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeRun {
		s.reject(conn, "", protocol.ErrProtoBadRequest, "expected RUN")
		return run, false
	}
	if err := json.Unmarshal(msg, &run); err != nil {
		s.reject(conn, "", protocol.ErrProtoBadRequest, "bad RUN: "+err.Error())
		return run, false
	}
	if run.ProtocolVersion != protocol.Version {
		s.reject(conn, run.ReqID, protocol.ErrProtoBadRequest, "bad protocol_version")
		return run, false
	}
	return run, true
}

func (s *Server) reject(conn *websocket.Conn, reqID, code, msg string) {
	_ = writeJSON(conn, protocol.NewError(reqID, code, msg), time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// streamSink turns step entries into STEP frames. It blocks while the queue is
// full, so a slow client slows the rover down instead of losing steps.
type streamSink struct {
	ctx   context.Context
	runID string
	out   chan<- []byte
}

func (s *streamSink) WriteStep(e rover.StepEntry) error {
	b, err := json.Marshal(driver.StepMsg(s.runID, e))
	if err != nil {
		return err
	}
	select {
	case s.out <- b:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
