package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/mission"
)

func main() {
	var (
		url         = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		missionPath = flag.String("mission", "./configs/missions/corners.yaml", "mission document to submit")
		reqID       = flag.String("req_id", "bot", "request id echoed in RESULT/ERROR")
		maxSteps    = flag.Int("max_steps", 0, "lower the server move cap for this run")
		quiet       = flag.Bool("quiet", false, "do not print individual steps")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	m, err := mission.Load(*missionPath)
	if err != nil {
		logger.Fatalf("mission: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	run := protocol.RunMsg{
		Type:            protocol.TypeRun,
		ProtocolVersion: protocol.Version,
		ReqID:           *reqID,
		Mission:         m.Doc(),
		MaxSteps:        *maxSteps,
	}
	onStep := func(st protocol.StepMsg) {
		if *quiet {
			return
		}
		if st.Token == "P" {
			logger.Printf("STEP %d P component=%d at %v next=%d", st.Seq, st.Component, st.Pos, st.Next)
			return
		}
		logger.Printf("STEP %d %s -> %v %s", st.Seq, st.Token, st.Pos, st.Phase)
	}

	res, err := Submit(ctx, *url, run, onStep)
	if err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("RESULT run_id=%s reason=%s collected=%d/%d moves=%d duration_ms=%d",
		res.RunID, res.Reason, res.Collected, res.Components, res.Steps, res.DurationMS)
	fmt.Println(res.Log)
}

// ServerError is an ERROR message returned by the server.
type ServerError struct{ Msg protocol.ErrorMsg }

func (e *ServerError) Error() string { return e.Msg.Code + ": " + e.Msg.Message }

// Submit sends one RUN and consumes the STEP stream until RESULT or ERROR.
func Submit(ctx context.Context, url string, run protocol.RunMsg, onStep func(protocol.StepMsg)) (protocol.ResultMsg, error) {
	var res protocol.ResultMsg
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return res, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(run); err != nil {
		return res, fmt.Errorf("send RUN: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, fmt.Errorf("read: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeStep:
			var st protocol.StepMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if onStep != nil {
				onStep(st)
			}
		case protocol.TypeResult:
			if err := json.Unmarshal(msg, &res); err != nil {
				return res, err
			}
			return res, nil
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				return res, err
			}
			return res, &ServerError{Msg: e}
		}
	}
}

func IsServerError(err error, code string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Msg.Code == code
}
