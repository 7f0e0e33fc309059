package sandbox

import (
	"fmt"
	"regexp"
)

// ---------------------------------------------------------------------------
// Static deny-list scan
// ---------------------------------------------------------------------------

// denyTokens are identifiers a pattern script may never mention: the host
// process object, the module loader, dynamic code evaluation, and the global
// binding. Matching is whole-word only; this is a cheap first filter, the
// guard layer is the real boundary.
var denyTokens = []string{"process", "require", "eval", "globalThis"}

var denyPattern = regexp.MustCompile(`\b(process|require|eval|globalThis)\b`)

// ForbiddenTokenError reports which denied identifier a script contains.
type ForbiddenTokenError struct {
	Token string
}

func (e *ForbiddenTokenError) Error() string {
	return fmt.Sprintf("script references forbidden identifier %q", e.Token)
}

// ScanScript rejects script source that mentions any deny-listed identifier
// as a whole word. A nil return means only that the cheap filter passed, not
// that the script is safe.
func ScanScript(src string) error {
	if tok := denyPattern.FindString(src); tok != "" {
		return &ForbiddenTokenError{Token: tok}
	}
	return nil
}

// DenyTokens returns the fixed identifier deny list.
func DenyTokens() []string {
	out := make([]string, len(denyTokens))
	copy(out, denyTokens)
	return out
}
