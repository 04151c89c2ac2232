package starlarkeval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bazelbuild/buildtools/build"
	"go.starlark.net/starlark"
)

// ConvValue converts a Starlark value into a buildtools expression so that
// it can be formatted. Unsupported values yield nil.
func ConvValue(value starlark.Value) build.Expr {
	switch t := value.(type) {
	case starlark.Int:
		if val, ok := t.Int64(); ok {
			return &build.LiteralExpr{
				Token: strconv.FormatInt(val, 10),
			}
		}
	case starlark.Bool:
		if t {
			return &build.Ident{Name: "True"}
		}
		return &build.Ident{Name: "False"}
	case starlark.String:
		return &build.StringExpr{
			Value:       t.GoString(),
			TripleQuote: strings.HasPrefix(t.String(), "\"\"\""),
		}
	case *starlark.List:
		list := &build.ListExpr{ForceMultiLine: t.Len() > 1}
		for i := 0; i < t.Len(); i++ {
			expr := ConvValue(t.Index(i))
			if expr == nil {
				return nil
			}
			list.List = append(list.List, expr)
		}
		return list
	}
	return nil
}

// FormatGlobals renders name = value assignments, in the given order, as a
// formatted Starlark file.
func FormatGlobals(names []string, values starlark.StringDict) ([]byte, error) {
	f := &build.File{Type: build.TypeDefault}
	for _, name := range names {
		value, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%s is not defined", name)
		}
		expr := ConvValue(value)
		if expr == nil {
			return nil, fmt.Errorf("%s: cannot format %s value", name, value.Type())
		}
		f.Stmt = append(f.Stmt, &build.AssignExpr{
			LHS: &build.Ident{Name: name},
			Op:  "=",
			RHS: expr,
		})
	}
	return build.Format(f), nil
}

// ToString converts a Starlark string.
func ToString(name string, value starlark.Value) (string, error) {
	s, ok := starlark.AsString(value)
	if !ok {
		return "", fmt.Errorf("%s: want string, got %s", name, value.Type())
	}
	return s, nil
}

// ToStringList converts a Starlark list or tuple of strings.
func ToStringList(name string, value starlark.Value) ([]string, error) {
	iterable, ok := value.(starlark.Indexable)
	if _, isString := value.(starlark.String); !ok || isString {
		return nil, fmt.Errorf("%s: want list of string, got %s", name, value.Type())
	}
	list := make([]string, iterable.Len())
	for i := range list {
		s, ok := starlark.AsString(iterable.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s[%d]: want string, got %s", name, i, iterable.Index(i).Type())
		}
		list[i] = s
	}
	return list, nil
}

// ToInt converts a Starlark int that fits in an int32.
func ToInt(name string, value starlark.Value) (int, error) {
	n, err := starlark.AsInt32(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// ToBool converts a Starlark bool.
func ToBool(name string, value starlark.Value) (bool, error) {
	b, ok := value.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("%s: want bool, got %s", name, value.Type())
	}
	return bool(b), nil
}
