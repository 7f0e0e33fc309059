package sandbox

import (
	"errors"
	"testing"
)

func TestScanScriptRejectsDenyTokens(t *testing.T) {
	cases := []struct {
		script string
		token  string
	}{
		{"process.exit(1);", "process"},
		{"return process.env.HOME;", "process"},
		{"const fs = require('fs');", "require"},
		{"return eval('1+1') === 2;", "eval"},
		{"return globalThis.Function !== undefined;", "globalThis"},
		{"if (true) { process.kill(0); }", "process"},
	}

	for _, c := range cases {
		err := ScanScript(c.script)
		if err == nil {
			t.Errorf("ScanScript(%q) = nil, want rejection", c.script)
			continue
		}
		var fte *ForbiddenTokenError
		if !errors.As(err, &fte) {
			t.Errorf("ScanScript(%q) error type %T", c.script, err)
			continue
		}
		if fte.Token != c.token {
			t.Errorf("ScanScript(%q) token = %q, want %q", c.script, fte.Token, c.token)
		}
	}
}

func TestScanScriptAllowsCleanScripts(t *testing.T) {
	cases := []string{
		"return true;",
		"return context.gender === 'male';",
		// Deny tokens as substrings of longer identifiers are fine.
		"return context.procession === 'ok';",
		"let requirement = 1; return requirement > 0;",
		"return context.evaluation !== undefined;",
		"",
	}
	for _, script := range cases {
		if err := ScanScript(script); err != nil {
			t.Errorf("ScanScript(%q) = %v, want nil", script, err)
		}
	}
}

func TestDenyTokensCopy(t *testing.T) {
	toks := DenyTokens()
	if len(toks) != 4 {
		t.Fatalf("deny list has %d entries, want 4", len(toks))
	}
	toks[0] = "mutated"
	if DenyTokens()[0] == "mutated" {
		t.Error("DenyTokens returned the internal slice")
	}
}
