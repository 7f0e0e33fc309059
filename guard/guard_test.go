package guard

import (
	"errors"
	"testing"
)

type star struct {
	Name       string `json:"name"`
	Brightness string `json:"brightness"`
}

type palace struct {
	Name  string  `json:"name"`
	Stars []*star `json:"stars"`
	next  *palace
}

type wheel struct {
	Name string   `json:"name"`
	Next *wheel   `json:"next"`
	Self *wheel   `json:"self"`
	Tags []string `json:"tags"`
}

type counter struct {
	N int `json:"n"`
}

func (c *counter) Bump() int            { c.N++; return c.N }
func (c *counter) Value() int           { return c.N }
func (c *counter) Same(o *counter) bool { return c == o }

func TestWrapPrimitivesPassThrough(t *testing.T) {
	w := NewWrapper()

	cases := []any{true, false, int(3), int64(-7), 3.14, "hello", nil}
	for _, in := range cases {
		out := w.Wrap(in)
		if out != in {
			t.Errorf("Wrap(%#v) = %#v, want unchanged", in, out)
		}
	}
}

func TestMetaNamesReadAbsent(t *testing.T) {
	w := NewWrapper()
	view := w.Wrap(&palace{Name: "命宫"}).(*View)

	for _, name := range []string{"constructor", "prototype", "__proto__"} {
		if got, ok := view.Get(name); ok || got != nil {
			t.Errorf("Get(%q) = (%v, %v), want absent", name, got, ok)
		}
	}

	for _, key := range view.Keys() {
		if IsMetaName(key) {
			t.Errorf("Keys() leaked meta name %q", key)
		}
	}
}

func TestMetaNamesAbsentOnMaps(t *testing.T) {
	w := NewWrapper()
	m := map[string]any{"gender": "male", "constructor": "planted"}
	view := w.Wrap(m).(*View)

	if got, ok := view.Get("constructor"); ok || got != nil {
		t.Errorf("map Get(constructor) = (%v, %v), want absent even when the key exists", got, ok)
	}
	if got, _ := view.Get("gender"); got != "male" {
		t.Errorf("map Get(gender) = %v, want male", got)
	}
}

func TestIdentityPreservingWrap(t *testing.T) {
	w := NewWrapper()
	p := &palace{Name: "命宫"}

	v1 := w.Wrap(p)
	v2 := w.Wrap(p)
	if v1 != v2 {
		t.Error("wrapping the same pointer twice returned distinct views")
	}
}

func TestIdentityAcrossTraversalPaths(t *testing.T) {
	w := NewWrapper()
	shared := &star{Name: "紫微"}
	a := &palace{Name: "a", Stars: []*star{shared}}
	b := &palace{Name: "b", Stars: []*star{shared}}

	va := w.Wrap(a).(*View)
	vb := w.Wrap(b).(*View)

	starsA, _ := va.Get("stars")
	starsB, _ := vb.Get("stars")
	sa := starsA.(*View).Index(0)
	sb := starsB.(*View).Index(0)
	if sa != sb {
		t.Error("the same star reached through two palaces wrapped to distinct views")
	}
}

func TestCyclicGraph(t *testing.T) {
	w := NewWrapper()
	root := &wheel{Name: "root", Tags: []string{"x"}}
	root.Next = root
	root.Self = root

	view := w.Wrap(root).(*View)
	next, _ := view.Get("next")
	self, _ := view.Get("self")

	if next != view || self != view {
		t.Error("cycle back to the root did not reuse the root's view")
	}
	if w.CachedCount() > 2 { // root + tags slice
		t.Errorf("cache grew to %d entries on a 1-node cycle", w.CachedCount())
	}
}

func TestNestedValuesAreWrapped(t *testing.T) {
	w := NewWrapper()
	p := &palace{Name: "命宫", Stars: []*star{{Name: "紫微", Brightness: "庙"}}}

	view := w.Wrap(p).(*View)
	stars, ok := view.Get("stars")
	if !ok {
		t.Fatal("stars field missing")
	}
	sv, ok := stars.(*View)
	if !ok || sv.Kind() != KindArray {
		t.Fatalf("stars = %T, want array view", stars)
	}
	first, ok := sv.Index(0).(*View)
	if !ok || first.Kind() != KindObject {
		t.Fatalf("stars[0] = %T, want object view", sv.Index(0))
	}
	if name, _ := first.Get("name"); name != "紫微" {
		t.Errorf("stars[0].name = %v, want 紫微", name)
	}
	if got, ok := first.Get("constructor"); ok || got != nil {
		t.Error("constructor reachable through a nested path")
	}
}

func TestUnexportedFieldsHidden(t *testing.T) {
	w := NewWrapper()
	p := &palace{Name: "x", next: &palace{Name: "hidden"}}
	view := w.Wrap(p).(*View)

	if _, ok := view.Get("next"); ok {
		t.Error("unexported field leaked through Get")
	}
}

func TestMethodCallBoundToRealReceiver(t *testing.T) {
	w := NewWrapper()
	c := &counter{N: 1}
	view := w.Wrap(c).(*View)

	bump, ok := view.Get("bump")
	if !ok {
		t.Fatal("bump method missing")
	}
	fn := bump.(*View)
	if fn.Kind() != KindCallable {
		t.Fatalf("bump is kind %d, want callable", fn.Kind())
	}

	out, err := fn.Call(nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != int(2) {
		t.Errorf("bump() = %v, want 2", out)
	}
	if c.N != 2 {
		t.Errorf("real receiver not mutated: N = %d", c.N)
	}
}

func TestMethodIdentityCached(t *testing.T) {
	w := NewWrapper()
	view := w.Wrap(&counter{}).(*View)

	m1, _ := view.Get("value")
	m2, _ := view.Get("value")
	if m1 != m2 {
		t.Error("two reads of the same method returned distinct views")
	}
}

func TestCallUnwrapsViewArguments(t *testing.T) {
	w := NewWrapper()
	c := &counter{N: 5}
	view := w.Wrap(c).(*View)

	same, _ := view.Get("same")
	out, err := same.(*View).Call([]any{view})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != true {
		t.Error("view argument did not unwrap to the real receiver")
	}
}

func TestCallWrapsReturnedObjects(t *testing.T) {
	w := NewWrapper()
	inner := &palace{Name: "inner"}
	get := func() *palace { return inner }

	fn := w.Wrap(get).(*View)
	out, err := fn.Call(nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	ov, ok := out.(*View)
	if !ok {
		t.Fatalf("return value = %T, want *View", out)
	}
	if ov != w.Wrap(inner) {
		t.Error("returned object's view not identity-cached")
	}
}

func TestCallErrorReturn(t *testing.T) {
	w := NewWrapper()
	boom := errors.New("boom")
	fn := w.Wrap(func() (string, error) { return "", boom }).(*View)

	if _, err := fn.Call(nil); !errors.Is(err, boom) {
		t.Errorf("Call err = %v, want boom", err)
	}
}

func TestCallPanicContained(t *testing.T) {
	w := NewWrapper()
	fn := w.Wrap(func() int { panic("scripted disaster") }).(*View)

	if _, err := fn.Call(nil); err == nil {
		t.Error("panic in callee did not surface as an error")
	}
}

func TestCallArgumentConversion(t *testing.T) {
	w := NewWrapper()
	fn := w.Wrap(func(n int, s string) string { return s }).(*View)

	// Script engines hand numbers over as int64.
	out, err := fn.Call([]any{int64(3), "ok"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "ok" {
		t.Errorf("Call = %v, want ok", out)
	}

	if _, err := fn.Call([]any{"three", "ok"}); err == nil {
		t.Error("string where int expected did not error")
	}
	if _, err := fn.Call([]any{int64(3)}); err == nil {
		t.Error("arity mismatch did not error")
	}
}

func TestStructTagNaming(t *testing.T) {
	type named struct {
		DisplayName string `json:"displayName,omitempty"`
		Hidden      string `json:"-"`
		Plain       string
	}
	w := NewWrapper()
	view := w.Wrap(&named{DisplayName: "a", Hidden: "b", Plain: "c"}).(*View)

	if got, _ := view.Get("displayName"); got != "a" {
		t.Errorf("displayName = %v", got)
	}
	if _, ok := view.Get("hidden"); ok {
		t.Error(`json:"-" field still readable`)
	}
	if got, _ := view.Get("plain"); got != "c" {
		t.Errorf("plain = %v", got)
	}
}

func TestAliasedSlicesGetDistinctViews(t *testing.T) {
	w := NewWrapper()
	base := []*star{{Name: "紫微"}, {Name: "天府"}, {Name: "太阳"}}

	short := w.Wrap(base[0:1]).(*View)
	long := w.Wrap(base[0:3]).(*View)
	if short == long {
		t.Fatal("aliased slices with different bounds share one view")
	}
	if short.Len() != 1 || long.Len() != 3 {
		t.Errorf("Len() = %d and %d, want 1 and 3", short.Len(), long.Len())
	}

	// The same reference still dedupes.
	if w.Wrap(base[0:3]).(*View) != long {
		t.Error("identical slice reference wrapped to a new view")
	}
	// Shared elements keep one identity through both slices.
	if short.Index(0) != long.Index(0) {
		t.Error("shared element wrapped to distinct views via the two slices")
	}
}

func TestEmptySlicesDistinctByType(t *testing.T) {
	w := NewWrapper()
	nums := w.Wrap(make([]int, 0)).(*View)
	names := w.Wrap(make([]string, 0)).(*View)

	if nums == names {
		t.Fatal("empty slices of different types share one view")
	}
	if nums.Len() != 0 || names.Len() != 0 {
		t.Errorf("Len() = %d and %d, want 0 and 0", nums.Len(), names.Len())
	}
	if nums.Index(0) != nil {
		t.Error("Index(0) on an empty slice should read absent")
	}
}

type shell struct {
	C counter `json:"c"`
}

func (s *shell) Value() int { return s.C.N + 100 }

func TestFirstFieldPointerDistinctFromOuter(t *testing.T) {
	w := NewWrapper()
	sh := &shell{C: counter{N: 7}}

	outer := w.Wrap(sh).(*View)
	inner := w.Wrap(&sh.C).(*View)
	if outer == inner {
		t.Fatal("pointer to struct and pointer to its first field share one view")
	}
	if _, ok := inner.Get("c"); ok {
		t.Error("inner view exposes the outer type's field table")
	}
	if got, _ := inner.Get("n"); got != 7 {
		t.Errorf("inner Get(n) = %v, want 7", got)
	}

	// Same method name, receivers at the same address: each view must bind
	// its own type's method.
	ov, _ := outer.Get("value")
	iv, _ := inner.Get("value")
	if got, err := ov.(*View).Call(nil); err != nil || got != 107 {
		t.Errorf("outer value() = (%v, %v), want 107", got, err)
	}
	if got, err := iv.(*View).Call(nil); err != nil || got != 7 {
		t.Errorf("inner value() = (%v, %v), want 7", got, err)
	}
}
