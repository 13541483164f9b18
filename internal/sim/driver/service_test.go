package driver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

func cornersDoc() protocol.MissionDoc {
	return protocol.MissionDoc{Name: "corners", GridSize: 3, Start: [2]int{2, 2}, Components: [][2]int{{0, 0}, {3, 0}}}
}

func TestService_RunAndHooks(t *testing.T) {
	svc := NewService(tuning.Defaults(), nil, nil)
	var (
		mu    sync.Mutex
		calls []string
	)
	svc.OnRun(func(transport string, rep Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, transport+":"+ErrorCode(err)+":"+string(rep.Result.Reason))
	})

	rep, err := svc.Run(context.Background(), RunRequest{Transport: "http", Mission: cornersDoc()})
	if err != nil || !rep.Complete() {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
	bad := cornersDoc()
	bad.GridSize = 0
	if _, err := svc.Run(context.Background(), RunRequest{Transport: "ws", Mission: bad}); err == nil {
		t.Fatalf("expected schema error")
	}
	if len(calls) != 2 || calls[0] != "http::COMPLETE" || calls[1] != "ws:"+protocol.ErrSchema+":" {
		t.Fatalf("calls=%v", calls)
	}
	if svc.InFlight() != 0 {
		t.Fatalf("slot leaked")
	}
}

func TestService_Busy(t *testing.T) {
	tune := tuning.Defaults()
	tune.Server.MaxConcurrentRuns = 1
	svc := NewService(tune, nil, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocker := stepFunc(func(rover.StepEntry) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), RunRequest{Mission: cornersDoc(), Observer: blocker})
		done <- err
	}()
	<-entered

	_, err := svc.Run(context.Background(), RunRequest{Mission: cornersDoc()})
	if ErrorCode(err) != protocol.ErrBusy {
		t.Fatalf("code=%q err=%v", ErrorCode(err), err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestService_RateLimited(t *testing.T) {
	tune := tuning.Defaults()
	tune.Server.RunsPerSecond = 0.001
	tune.Server.RunBurst = 2
	svc := NewService(tune, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Run(context.Background(), RunRequest{Mission: cornersDoc()}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	_, err := svc.Run(context.Background(), RunRequest{Mission: cornersDoc()})
	if ErrorCode(err) != protocol.ErrRateLimited {
		t.Fatalf("code=%q err=%v", ErrorCode(err), err)
	}

	// Invalid missions are rejected before they spend a token.
	tune.Server.RunBurst = 1
	svc = NewService(tune, nil, nil)
	bad := cornersDoc()
	bad.Components = nil
	if _, err := svc.Run(context.Background(), RunRequest{Mission: bad}); ErrorCode(err) == protocol.ErrRateLimited {
		t.Fatalf("invalid mission consumed the limiter")
	}
	if _, err := svc.Run(context.Background(), RunRequest{Mission: cornersDoc()}); err != nil {
		t.Fatalf("first valid run: %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	if ErrorCode(context.Canceled) != protocol.ErrCanceled {
		t.Fatalf("canceled")
	}
	if ErrorCode(errors.New("x")) != protocol.ErrInternal {
		t.Fatalf("internal")
	}
	if ErrorCode(nil) != "" {
		t.Fatalf("nil")
	}
}
