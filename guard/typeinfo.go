package guard

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Type registry: script-visible name tables for struct-backed objects
// ---------------------------------------------------------------------------

// typeInfo holds the script-visible member names of one Go type. Fields map
// to their index path, methods to their method index on the view's receiver
// type. Built once per type and shared across Wrappers.
type typeInfo struct {
	fields  map[string][]int
	methods map[string]int
	names   []string // declaration order, fields then methods
}

var typeInfos sync.Map // reflect.Type → *typeInfo

// infoForType returns the member table for t (a struct or pointer-to-struct
// type), or nil for anything else.
func infoForType(t reflect.Type) *typeInfo {
	if cached, ok := typeInfos.Load(t); ok {
		return cached.(*typeInfo)
	}

	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}

	info := &typeInfo{
		fields:  make(map[string][]int),
		methods: make(map[string]int),
	}
	collectFields(st, nil, info)

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		name := lowerFirst(m.Name)
		if IsMetaName(name) {
			continue
		}
		if _, taken := info.methods[name]; taken {
			continue
		}
		info.methods[name] = m.Index
		info.names = append(info.names, name)
	}

	actual, _ := typeInfos.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

func collectFields(st reflect.Type, prefix []int, info *typeInfo) {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		idx := append(append([]int{}, prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			collectFields(f.Type, idx, info)
			continue
		}

		name := scriptName(f)
		if name == "" || IsMetaName(name) {
			continue
		}
		if _, taken := info.fields[name]; taken {
			continue
		}
		info.fields[name] = idx
		info.names = append(info.names, name)
	}
}

// scriptName resolves the name a field is exposed under: the JSON tag name
// when present, otherwise the lower-camel form of the Go name. A "-" tag
// hides the field from scripts entirely.
func scriptName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return lowerFirst(f.Name)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
