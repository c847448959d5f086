package logging

import (
	"log/slog"
	"slices"
)

// boundAttr is an attribute added through WithAttrs together with the groups
// that were open at the time.
type boundAttr struct {
	groups []string
	attr   slog.Attr
}

// scope is the state shared by the journal and history handlers.
type scope struct {
	level  slog.Leveler
	bound  []boundAttr
	groups []string
}

func (s scope) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	bound := slices.Clip(s.bound)
	for _, a := range attrs {
		bound = append(bound, boundAttr{groups: s.groups, attr: a})
	}
	s.bound = bound
	return s
}

func (s scope) withGroup(name string) scope {
	if name != "" {
		s.groups = append(slices.Clip(s.groups), name)
	}
	return s
}

// walk calls fn with the full key path and resolved value of every leaf
// attribute, bound ones first. Inline groups (empty key) do not add a path
// element and empty attributes are skipped.
func (s scope) walk(r slog.Record, fn func(path []string, v slog.Value)) {
	for _, b := range s.bound {
		visit(b.groups, b.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		visit(s.groups, a, fn)
		return true
	})
}

func visit(prefix []string, a slog.Attr, fn func([]string, slog.Value)) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = append(slices.Clip(prefix), a.Key)
		}
		for _, ga := range v.Group() {
			visit(inner, ga, fn)
		}
		return
	}
	if a.Key == "" {
		return
	}
	fn(append(slices.Clip(prefix), a.Key), v)
}
