// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/server"
)

// QueryServerConfig tunes the in-memory query service.
type QueryServerConfig struct {
	// Addr is the listen address. Defaults to "127.0.0.1:0", a random
	// loopback port.
	Addr string
}

type scriptedQueryFailure struct {
	code    errdefs.ErrorCode
	message string
	times   int
}

type queryScript struct {
	rows     []json.RawMessage
	failures []*scriptedQueryFailure
}

// QueryServer is an in-memory query service speaking the real HTTP+JSON
// protocol on a real listener, so client code exercises its full transport
// path. Statements are scripted: ScriptRows sets a statement's result set,
// ScriptError makes it fail a number of times first. Unscripted statements
// get a syntax error when the first word is not a known verb, and an index
// not found error otherwise. Safe for concurrent use.
type QueryServer struct {
	cfg    QueryServerConfig
	logger *logging.Logger
	engine *gin.Engine

	mu       sync.Mutex
	scripts  map[string]*queryScript
	server   *http.Server
	listener net.Listener
	serveErr chan error
}

func NewQueryServer(cfg QueryServerConfig) *QueryServer {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := &QueryServer{
		cfg:     cfg,
		logger:  logging.GetLogger("emulator/query"),
		scripts: map[string]*queryScript{},
	}
	// an isolated metrics registry keeps this engine from colliding with the
	// debug surface or other emulators in the same process
	s.engine = server.NewEngineWith(server.EngineConfig{Registry: prometheus.NewRegistry()})
	s.engine.POST("/query/service", s.handleQuery)
	return s
}

// ScriptRows sets the result set the statement answers with once no scripted
// failures remain. Rows are serialized now, so a bad row fails the script,
// not a later request.
func (s *QueryServer) ScriptRows(statement string, rows ...interface{}) error {
	encoded := make([]json.RawMessage, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		encoded[i] = data
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script(statement).rows = encoded
	return nil
}

// ScriptError makes the statement fail with the given code and message for
// the next times requests, after which it falls back to its scripted rows.
// Repeated calls queue up in order.
func (s *QueryServer) ScriptError(statement string, code errdefs.ErrorCode, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.script(statement)
	sc.failures = append(sc.failures, &scriptedQueryFailure{code: code, message: message, times: times})
}

// script returns the statement's script, creating it. Callers hold mu.
func (s *QueryServer) script(statement string) *queryScript {
	sc := s.scripts[statement]
	if sc == nil {
		sc = &queryScript{}
		s.scripts[statement] = sc
	}
	return sc
}

// takeFailure consumes one scripted failure for the statement, if any
// remain. Exhausted entries are dropped from the queue.
func (s *QueryServer) takeFailure(statement string) *scriptedQueryFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scripts[statement]
	if sc == nil {
		return nil
	}
	for len(sc.failures) > 0 {
		f := sc.failures[0]
		if f.times > 0 {
			f.times--
			return f
		}
		sc.failures = sc.failures[1:]
	}
	return nil
}

func (s *QueryServer) takeRows(statement string) ([]json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scripts[statement]
	if sc == nil || sc.rows == nil {
		return nil, false
	}
	return sc.rows, true
}

// Start listens and begins serving in the background. The context bounds the
// listen call and becomes the base context of every request; stopping the
// server is Close's job.
func (s *QueryServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("query server already started")
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.server = &http.Server{
		Handler:     s.engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.serveErr = make(chan error, 1)
	go func(srv *http.Server, errs chan<- error) {
		err := srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errs <- err
	}(s.server, s.serveErr)
	s.logger.Info().Str("addr", l.Addr().String()).Msg("Query emulator listening")
	return nil
}

// URL returns the server's base URL, empty until Start succeeds.
func (s *QueryServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Close drains in-flight requests and stops the listener. It is a no-op on a
// server that never started.
func (s *QueryServer) Close() error {
	s.mu.Lock()
	srv, serveErr := s.server, s.serveErr
	s.server, s.listener, s.serveErr = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	if sErr := <-serveErr; err == nil {
		err = sErr
	}
	return err
}

// queryServiceRequest is the JSON body the query service accepts.
type queryServiceRequest struct {
	Statement       string        `json:"statement"`
	ClientContextID string        `json:"client_context_id"`
	Args            []interface{} `json:"args"`
	Readonly        bool          `json:"readonly"`
	Timeout         string        `json:"timeout"`
	QueryContext    string        `json:"query_context"`
}

type queryServiceMetrics struct {
	ElapsedTime   string `json:"elapsedTime,omitempty"`
	ExecutionTime string `json:"executionTime,omitempty"`
	ResultCount   uint64 `json:"resultCount"`
	ResultSize    uint64 `json:"resultSize"`
	MutationCount uint64 `json:"mutationCount,omitempty"`
	ErrorCount    uint64 `json:"errorCount,omitempty"`
}

type queryServiceResponse struct {
	RequestID       string              `json:"requestID"`
	ClientContextID string              `json:"clientContextID,omitempty"`
	Results         []json.RawMessage   `json:"results"`
	Errors          []errdefs.ErrorDesc `json:"errors,omitempty"`
	Status          string              `json:"status"`
	Metrics         queryServiceMetrics `json:"metrics"`
}

// statement verbs the parser recognizes; everything else is a syntax error.
var queryVerbs = map[string]bool{
	"select": true, "insert": true, "upsert": true, "update": true,
	"delete": true, "merge": true, "create": true, "drop": true,
	"alter": true, "build": true, "grant": true, "revoke": true,
	"explain": true, "prepare": true, "execute": true, "infer": true,
	"advise": true,
}

// verbs that cannot mutate, and so are allowed under the readonly flag.
var readonlyVerbs = map[string]bool{
	"select": true, "explain": true, "infer": true, "advise": true,
}

func statementVerb(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func (s *QueryServer) handleQuery(c *gin.Context) {
	start := time.Now()

	var req queryServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "", http.StatusBadRequest, errdefs.ErrorDesc{
			Code: 1065, Message: "failed to decode request body: " + err.Error(),
		})
		return
	}
	if req.Statement == "" {
		s.fail(c, req.ClientContextID, http.StatusBadRequest, errdefs.ErrorDesc{
			Code: 1065, Message: "missing required parameter: statement",
		})
		return
	}

	// scripts win over parsing, so tests keep full control of responses
	if f := s.takeFailure(req.Statement); f != nil {
		s.logger.Trace().Uint32("code", uint32(f.code)).Msg("Scripted query failure")
		s.fail(c, req.ClientContextID, httpStatusForCode(f.code), errdefs.ErrorDesc{
			Code: f.code, Message: f.message,
		})
		return
	}
	if rows, ok := s.takeRows(req.Statement); ok {
		s.succeed(c, req.ClientContextID, rows, start)
		return
	}

	verb := statementVerb(req.Statement)
	if !queryVerbs[verb] {
		s.fail(c, req.ClientContextID, http.StatusBadRequest, errdefs.ErrorDesc{
			Code: 3000, Message: fmt.Sprintf("syntax error - at %q", verb),
		})
		return
	}
	if req.Readonly && !readonlyVerbs[verb] {
		s.fail(c, req.ClientContextID, http.StatusBadRequest, errdefs.ErrorDesc{
			Code: 1000, Message: fmt.Sprintf("%s statement is not allowed with readonly", verb),
		})
		return
	}
	s.fail(c, req.ClientContextID, http.StatusNotFound, errdefs.ErrorDesc{
		Code: 12004, Message: "no index available for statement",
	})
}

func (s *QueryServer) succeed(c *gin.Context, contextID string, rows []json.RawMessage, start time.Time) {
	size := uint64(0)
	for _, row := range rows {
		size += uint64(len(row))
	}
	elapsed := time.Since(start).String()
	c.JSON(http.StatusOK, queryServiceResponse{
		RequestID:       uuid.NewString(),
		ClientContextID: contextID,
		Results:         rows,
		Status:          "success",
		Metrics: queryServiceMetrics{
			ElapsedTime:   elapsed,
			ExecutionTime: elapsed,
			ResultCount:   uint64(len(rows)),
			ResultSize:    size,
		},
	})
}

func (s *QueryServer) fail(c *gin.Context, contextID string, status int, descs ...errdefs.ErrorDesc) {
	c.JSON(status, queryServiceResponse{
		RequestID:       uuid.NewString(),
		ClientContextID: contextID,
		Results:         []json.RawMessage{},
		Errors:          descs,
		Status:          "fatal",
		Metrics:         queryServiceMetrics{ErrorCount: uint64(len(descs))},
	})
}

// httpStatusForCode picks the HTTP status the real service pairs with an
// error code family.
func httpStatusForCode(code errdefs.ErrorCode) int {
	switch {
	case code >= 1000 && code < 2000:
		return http.StatusBadRequest
	case code >= 3000 && code < 4000:
		return http.StatusBadRequest
	case code == 12003 || code == 12004 || code == 12016:
		return http.StatusNotFound
	case code >= 13000 && code < 14000:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
