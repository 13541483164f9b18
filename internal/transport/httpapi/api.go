package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"rovergrid.ai/internal/persistence/indexdb"
	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/driver"
)

const Transport = "http"

type RunIndex interface {
	RecentRuns(ctx context.Context, limit int) ([]indexdb.RunRow, error)
	LookupRun(ctx context.Context, runID string) (indexdb.RunRow, bool, error)
}

type API struct {
	svc     *driver.Service
	metrics *Metrics
	index   RunIndex
	log     *log.Logger
	maxBody int64
}

// New builds the API. index may be nil, in which case the read endpoints answer 404.
func New(svc *driver.Service, metrics *Metrics, index RunIndex, logger *log.Logger) *API {
	maxBody := svc.Tuning().Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &API{svc: svc, metrics: metrics, index: index, log: logger, maxBody: maxBody}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/runs", a.handleRun)
	mux.HandleFunc("GET /v1/runs", a.handleRecent)
	mux.HandleFunc("GET /v1/runs/{id}", a.handleLookup)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
}

// handleRun accepts either a RUN-shaped body ({"mission": {...}, "max_steps": n})
// or a bare mission document.
func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			a.writeError(w, r, "", protocol.ErrTooLarge, "body too large")
			return
		}
		a.writeError(w, r, "", protocol.ErrProtoBadRequest, err.Error())
		return
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		a.writeError(w, r, "", protocol.ErrProtoBadRequest, "body must be a JSON object")
		return
	}

	var run protocol.RunMsg
	if _, wrapped := keys["mission"]; wrapped {
		if err := json.Unmarshal(raw, &run); err != nil {
			a.writeError(w, r, "", protocol.ErrProtoBadRequest, err.Error())
			return
		}
		if run.ProtocolVersion != "" && run.ProtocolVersion != protocol.Version {
			a.writeError(w, r, run.ReqID, protocol.ErrProtoBadRequest, "bad protocol_version")
			return
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&run.Mission); err != nil {
			a.writeError(w, r, "", protocol.ErrSchema, err.Error())
			return
		}
	}
	if run.MaxSteps < 0 {
		a.writeError(w, r, run.ReqID, protocol.ErrBadArgs, "max_steps must be >= 0")
		return
	}

	rep, err := a.svc.Run(r.Context(), driver.RunRequest{
		Transport: Transport,
		Mission:   run.Mission,
		MaxSteps:  run.MaxSteps,
	})
	if err != nil {
		a.writeError(w, r, run.ReqID, driver.ErrorCode(err), err.Error())
		return
	}
	a.writeJSON(w, r, http.StatusOK, rep.ResultMsg(run.ReqID))
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		http.NotFound(w, r)
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			a.writeError(w, r, "", protocol.ErrBadArgs, "limit must be in 1..1000")
			return
		}
		limit = n
	}
	runs, err := a.index.RecentRuns(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, "", protocol.ErrInternal, err.Error())
		return
	}
	if runs == nil {
		runs = []indexdb.RunRow{}
	}
	a.writeJSON(w, r, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleLookup(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	row, ok, err := a.index.LookupRun(r.Context(), id)
	if err != nil {
		a.writeError(w, r, "", protocol.ErrInternal, err.Error())
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.writeJSON(w, r, http.StatusOK, row)
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case protocol.ErrBusy, protocol.ErrRateLimited:
		return http.StatusTooManyRequests
	case protocol.ErrCanceled:
		return http.StatusServiceUnavailable
	case protocol.ErrInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, reqID, code, msg string) {
	if a.log != nil && code == protocol.ErrInternal {
		a.log.Printf("http %s %s: %s", r.Method, r.URL.Path, msg)
	}
	a.writeJSON(w, r, statusFor(code), protocol.NewError(reqID, code, msg))
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	if a.metrics != nil {
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		a.metrics.recordHTTP(r.Method, path, strconv.Itoa(status))
	}
}
