package component

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/ajitpratap0/recordflow/pkg/record"
)

const (
	exprStart    = "${"
	exprEnd      = "}"
	exprFallback = ":-"
)

// HasExpression reports whether s contains a ${...} reference.
func HasExpression(s string) bool {
	i := strings.Index(s, exprStart)
	return i >= 0 && strings.Contains(s[i+len(exprStart):], exprEnd)
}

// expression is a property value compiled once and executed per record.
// A nil template means the raw text is used literally.
type expression struct {
	raw string
	tpl *fasttemplate.Template
}

func compileExpression(raw string) *expression {
	e := &expression{raw: raw}
	if !HasExpression(raw) {
		return e
	}
	tpl, err := fasttemplate.NewTemplate(raw, exprStart, exprEnd)
	if err != nil {
		return e
	}
	e.tpl = tpl
	return e
}

// evaluate substitutes ${field} with the field's string form. A missing
// field yields the ${field:-fallback} text, or "" without a fallback.
func (e *expression) evaluate(r *record.Record) string {
	if e.tpl == nil {
		return e.raw
	}
	return e.tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		name, fallback, _ := strings.Cut(tag, exprFallback)
		name = strings.TrimSpace(name)
		if r != nil {
			if f, ok := r.GetField(name); ok && f.IsSet() {
				return io.WriteString(w, f.AsString())
			}
		}
		return io.WriteString(w, fallback)
	})
}
