package record

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// visitPath tracks the records on the current descent so cycles are caught.
type visitPath struct {
	onPath map[*Record]bool
	names  []string
}

func newVisitPath() *visitPath {
	return &visitPath{onPath: map[*Record]bool{}}
}

func (p *visitPath) join(name string) string {
	if len(p.names) == 0 {
		return name
	}
	return strings.Join(p.names, ".") + "." + name
}

// IsValid reports whether every field is valid. A record that contains
// itself, directly or transitively, is never valid.
func (r *Record) IsValid() bool {
	return r.Validate() == nil
}

// Validate returns the first field that fails validation, or a structural
// error when the nested record graph is cyclic.
func (r *Record) Validate() error {
	return r.check(newVisitPath(), "")
}

func (r *Record) check(path *visitPath, name string) error {
	if path.onPath[r] {
		return errors.Newf(errors.ErrorTypeStructural, "record cycle at field %q", path.join(name)).
			WithDetail("field", path.join(name))
	}
	path.onPath[r] = true
	if name != "" {
		path.names = append(path.names, name)
	}
	defer func() {
		delete(path.onPath, r)
		if name != "" {
			path.names = path.names[:len(path.names)-1]
		}
	}()

	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		if err := p.Value.check(path); err != nil {
			return err
		}
	}
	return nil
}

// checkContained validates the records held by a container value, walking
// slices and string-keyed maps on the same path as nested record fields.
func checkContained(path *visitPath, name string, v interface{}) error {
	switch t := v.(type) {
	case nil, []byte:
		return nil
	case *Record:
		if t == nil {
			return nil
		}
		return t.check(path, name)
	}

	rv := reflect.ValueOf(v)
	switch {
	case isList(rv):
		for i := 0; i < rv.Len(); i++ {
			if err := checkContained(path, fmt.Sprintf("%s[%d]", name, i), rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case isStringMap(rv):
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			item := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			if err := checkContained(path, fmt.Sprintf("%s[%s]", name, k), item.Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}
