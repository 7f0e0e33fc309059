package server

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/kexing/starmatch/engine"
	"github.com/kexing/starmatch/sandbox"
	"github.com/kexing/starmatch/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "patterns.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	coord := engine.NewCoordinator(st, sandbox.NewExecutor(0))
	return NewService(st, coord)
}

func call(t *testing.T, s *Service, method string, params any) (any, error) {
	t.Helper()
	req := &jsonrpc2.Request{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		raw := json.RawMessage(data)
		req.Params = &raw
	}
	return s.Handle(context.Background(), req)
}

func rpcCode(t *testing.T, err error) int64 {
	t.Helper()
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *jsonrpc2.Error", err)
	}
	return rpcErr.Code
}

func TestCreateListEvaluateFlow(t *testing.T) {
	s := newTestService(t)

	res, err := call(t, s, "pattern/create", CreateParams{
		Name:        "male chart",
		Script:      "return context.gender === 'male';",
		Description: "matches male charts",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.(*CreateResult).ID
	if id == "" {
		t.Fatal("empty id")
	}

	res, err = call(t, s, "pattern/list", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	patterns := res.(*ListResult).Patterns
	if len(patterns) != 1 || patterns[0].ID != id {
		t.Fatalf("list = %+v", patterns)
	}

	res, err = call(t, s, "pattern/evaluate", EvaluateParams{
		Chart: json.RawMessage(`{"gender": "male", "palaces": []}`),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	matches := res.(*EvaluateResult).Matches
	if len(matches) != 1 || matches[0].ID != id || matches[0].Name != "male chart" {
		t.Errorf("matches = %+v", matches)
	}

	res, err = call(t, s, "pattern/evaluate", EvaluateParams{
		Chart: json.RawMessage(`{"gender": "female", "palaces": []}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.(*EvaluateResult).Matches; len(got) != 0 {
		t.Errorf("female chart matched: %+v", got)
	}
}

func TestCreateValidationMapsToInvalidParams(t *testing.T) {
	s := newTestService(t)

	_, err := call(t, s, "pattern/create", CreateParams{Name: "x", Script: "process.exit(1);"})
	if code := rpcCode(t, err); code != jsonrpc2.CodeInvalidParams {
		t.Errorf("code = %d, want invalid params", code)
	}

	_, err = call(t, s, "pattern/create", CreateParams{Name: "", Script: "return true;"})
	if code := rpcCode(t, err); code != jsonrpc2.CodeInvalidParams {
		t.Errorf("code = %d, want invalid params", code)
	}
}

func TestEvaluateRequiresChart(t *testing.T) {
	s := newTestService(t)

	_, err := call(t, s, "pattern/evaluate", EvaluateParams{})
	if code := rpcCode(t, err); code != jsonrpc2.CodeInvalidParams {
		t.Errorf("code = %d, want invalid params", code)
	}

	_, err = call(t, s, "pattern/evaluate", EvaluateParams{Chart: json.RawMessage("{bad")})
	if code := rpcCode(t, err); code != jsonrpc2.CodeInvalidParams {
		t.Errorf("code = %d, want invalid params", code)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestService(t)

	_, err := call(t, s, "pattern/destroy", nil)
	if code := rpcCode(t, err); code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("code = %d, want method not found", code)
	}
}
