// Package server exposes the pattern engine over JSON-RPC 2.0, on stdio or
// TCP. It is a thin surface: request decoding and error mapping only, with
// all semantics in the store and engine packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"

	"github.com/kexing/starmatch/chart"
	"github.com/kexing/starmatch/engine"
	"github.com/kexing/starmatch/store"
)

// Service handles the pattern RPC methods.
type Service struct {
	store *store.Store
	coord *engine.Coordinator
	log   commonlog.Logger
}

// NewService creates a Service over the given store and coordinator.
func NewService(st *store.Store, coord *engine.Coordinator) *Service {
	return &Service{
		store: st,
		coord: coord,
		log:   commonlog.GetLogger("starmatch.server"),
	}
}

// CreateParams are the arguments of pattern/create.
type CreateParams struct {
	Name        string `json:"name"`
	Script      string `json:"script"`
	Description string `json:"description"`
	Examples    string `json:"examples"`
}

// CreateResult is the response of pattern/create.
type CreateResult struct {
	ID string `json:"id"`
}

// ListResult is the response of pattern/list.
type ListResult struct {
	Patterns []store.Pattern `json:"patterns"`
}

// EvaluateParams are the arguments of pattern/evaluate. Chart carries the
// computed chart payload from the external engine.
type EvaluateParams struct {
	Chart json.RawMessage `json:"chart"`
}

// EvaluateResult is the response of pattern/evaluate.
type EvaluateResult struct {
	Matches []engine.Match `json:"matches"`
}

// Handle dispatches one JSON-RPC request.
func (s *Service) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "pattern/create":
		var params CreateParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		id, err := s.store.Create(params.Name, params.Script, params.Description, params.Examples)
		if err != nil {
			var ve *store.ValidationError
			if errors.As(err, &ve) {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: ve.Error()}
			}
			s.log.Errorf("create failed: %v", err)
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "storage failure"}
		}
		return &CreateResult{ID: id}, nil

	case "pattern/list":
		patterns, err := s.store.List()
		if err != nil {
			s.log.Errorf("list failed: %v", err)
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "storage failure"}
		}
		if patterns == nil {
			patterns = []store.Pattern{}
		}
		return &ListResult{Patterns: patterns}, nil

	case "pattern/evaluate":
		var params EvaluateParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		if len(params.Chart) == 0 {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "chart is required"}
		}
		c, err := chart.FromJSON(params.Chart)
		if err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
		matches, err := s.coord.EvaluateAll(ctx, c)
		if err != nil {
			s.log.Errorf("evaluate failed: %v", err)
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "evaluation failure"}
		}
		return &EvaluateResult{Matches: matches}, nil
	}

	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
}

func decodeParams(req *jsonrpc2.Request, out any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(*req.Params, out); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// handler adapts Service to jsonrpc2's handler shape.
func (s *Service) handler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		return s.Handle(ctx, req)
	})
}

// ServeStdio serves requests on stdin/stdout until the peer disconnects.
func (s *Service) ServeStdio(ctx context.Context) error {
	stream := jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, s.handler())
	select {
	case <-conn.DisconnectNotify():
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

// ServeTCP serves requests on a TCP listener, one JSON-RPC connection per
// accepted socket, until ctx is cancelled.
func (s *Service) ServeTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()
	s.log.Noticef("pattern server listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		sock, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		stream := jsonrpc2.NewBufferedStream(sock, jsonrpc2.VSCodeObjectCodec{})
		jsonrpc2.NewConn(ctx, stream, s.handler())
	}
}

// stdrwc glues stdin/stdout into one ReadWriteCloser for the stdio stream.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

var _ io.ReadWriteCloser = stdrwc{}
