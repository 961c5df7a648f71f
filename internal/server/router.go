package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/drwatch/internal/auth"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/metrics"
	"github.com/loykin/drwatch/internal/monitor"
	"github.com/loykin/drwatch/internal/store"
)

// Router provides embeddable HTTP handlers for observing a run and answering
// the operator confirmation.
// Endpoints:
//
//	GET  {basePath}/status    monitor state, last reading, store record counts
//	GET  {basePath}/events    recent ledger events
//	POST {basePath}/confirm   body: {"answer":"yes"}
//	POST {basePath}/token     bearer token for an operator (auth enabled only)
//	GET  /metrics             Prometheus metrics (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	basePath string
	status   StatusProvider
	answers  Answerer
	events   *history.Recorder
	stores   []store.Store
	metrics  bool
	auth     *auth.Service
}

// StatusProvider is the read-only view of a running monitor.
type StatusProvider interface {
	State() monitor.State
	LastReading() float64
	IncidentID() string
	Threshold() float64
}

// Answerer accepts operator answers, e.g. confirm.Channel.
type Answerer interface {
	Submit(answer string) error
	Pending() string
}

// Options configure a Router. Nil fields disable the matching endpoint data.
type Options struct {
	BasePath string
	Status   StatusProvider
	Answers  Answerer
	Events   *history.Recorder
	Stores   []store.Store
	Metrics  bool
	// Auth, when set, guards POST /confirm and enables POST /token.
	Auth *auth.Service
	// TLS, when set, makes NewServer serve HTTPS.
	TLS *tls.Config
}

func NewRouter(o Options) *Router {
	return &Router{
		basePath: sanitizeBase(o.BasePath),
		status:   o.Status,
		answers:  o.Answers,
		events:   o.Events,
		stores:   o.Stores,
		metrics:  o.Metrics,
		auth:     o.Auth,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/events", r.handleEvents)
	group.POST("/confirm", auth.GinAuth(r.auth), r.handleConfirm)
	if r.auth != nil {
		group.POST("/token", auth.GinAuth(r.auth), r.handleToken)
	}
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The listener is bound before NewServer returns, so a busy port is reported
// to the caller. Call Shutdown on the returned server to stop it.
func NewServer(addr string, o Options) (*http.Server, error) {
	if addr == "" {
		return nil, errors.New("server listen address required")
	}
	gin.SetMode(gin.ReleaseMode)
	r := NewRouter(o)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         o.TLS,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if o.TLS != nil {
		go func() { _ = server.ServeTLS(ln, "", "") }()
	} else {
		go func() { _ = server.Serve(ln) }()
	}
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	State      string         `json:"state"`
	Reading    float64        `json:"reading"`
	Threshold  float64        `json:"threshold"`
	IncidentID string         `json:"incident_id,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
	Records    map[string]int `json:"records,omitempty"`
}

type confirmReq struct {
	Answer string `json:"answer"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{State: monitor.StateIdle.String()}
	if r.status != nil {
		resp.State = r.status.State().String()
		resp.Reading = r.status.LastReading()
		resp.Threshold = r.status.Threshold()
		resp.IncidentID = r.status.IncidentID()
	}
	if r.answers != nil {
		resp.Prompt = r.answers.Pending()
	}
	if len(r.stores) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		resp.Records = make(map[string]int, len(r.stores))
		for _, s := range r.stores {
			recs, err := s.ReadAll(ctx)
			if err != nil {
				writeJSON(c, http.StatusInternalServerError, errorResp{Error: "read " + s.Name() + ": " + err.Error()})
				return
			}
			resp.Records[s.Name()] = len(recs)
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.events == nil {
		writeJSON(c, http.StatusOK, []history.Event{})
		return
	}
	events := r.events.Recent()
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}

func (r *Router) handleConfirm(c *gin.Context) {
	if r.answers == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "operator confirmation is not served over HTTP"})
		return
	}
	var req confirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isValidAnswer(req.Answer) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "answer must be a short single-line string"})
		return
	}
	if r.answers.Pending() == "" {
		writeJSON(c, http.StatusConflict, errorResp{Error: "no confirmation pending"})
		return
	}
	if err := r.answers.Submit(req.Answer); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	if op := auth.Operator(c); op != "" && r.events != nil {
		r.events.Logger().Info("confirmation answer received", "operator", op, "answer", req.Answer)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleToken(c *gin.Context) {
	tok, err := r.auth.Issue(auth.Operator(c))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, tok)
}
