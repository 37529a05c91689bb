package invoke

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Kind is the type of an argument value.
type Kind int

const (
	KindString Kind = iota
	KindPath
	KindInt
	KindFloat
	KindBool
	// KindInclude renders as "^path": the tool reads the value from a file.
	KindInclude
	// KindGroup is a list of paths passed through a list file.
	KindGroup
)

// Value is a typed argument value.
type Value struct {
	kind  Kind
	str   string
	num   int
	float float64
	flag  bool
	paths []string
}

// String returns a literal string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Path returns a file path value.
func Path(p string) Value { return Value{kind: KindPath, str: p} }

// Int returns an integer value.
func Int(n int) Value { return Value{kind: KindInt, num: n} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, float: f} }

// Bool returns a logical value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Include returns a value read by the tool from the file at path.
func Include(path string) Value { return Value{kind: KindInclude, str: path} }

// Group returns a list of paths.
func Group(paths ...string) Value {
	return Value{kind: KindGroup, paths: append([]string(nil), paths...)}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Paths returns the paths of a group value.
func (v Value) Paths() []string { return append([]string(nil), v.paths...) }

// render returns the textual form of v. Group values are rendered by the
// caller, which owns list-file allocation.
func (v Value) render() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.num)
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	case KindInclude:
		return "^" + v.str
	default:
		return v.str
	}
}

// Arg is a named argument.
type Arg struct {
	Name  string
	Value Value
}

// Request describes one external tool invocation: the command and a set
// of named, typed arguments. Each argument becomes exactly one argv token
// "name=value"; no shell is involved.
type Request struct {
	// Tool is a short name used in logs, metrics and transcripts.
	Tool string

	// Command is the executable path.
	Command string

	// Args are the named arguments, in order.
	Args []Arg

	// Raw are passthrough tokens appended after the named arguments.
	Raw []string
}

// NewRequest returns an empty request for command.
func NewRequest(tool, command string) *Request {
	return &Request{Tool: tool, Command: command}
}

// Set appends a named argument.
func (r *Request) Set(name string, v Value) *Request {
	r.Args = append(r.Args, Arg{Name: name, Value: v})
	return r
}

// SetIf appends a named argument when ok is true.
func (r *Request) SetIf(ok bool, name string, v Value) *Request {
	if ok {
		r.Set(name, v)
	}
	return r
}

// Get returns the value of the named argument.
func (r *Request) Get(name string) (Value, bool) {
	for _, a := range r.Args {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return Value{}, false
}

// Validate checks the request before it is run.
func (r *Request) Validate() error {
	if r.Command == "" {
		return errors.New("command is required")
	}
	seen := make(map[string]bool, len(r.Args))
	for _, a := range r.Args {
		if a.Name == "" {
			return errors.New("argument name is required")
		}
		if strings.ContainsAny(a.Name, "= \t\n") {
			return fmt.Errorf("invalid argument name %q", a.Name)
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			return fmt.Errorf("duplicate argument %q", a.Name)
		}
		seen[key] = true

		switch a.Value.kind {
		case KindPath, KindInclude:
			if a.Value.str == "" {
				return fmt.Errorf("argument %q: empty path", a.Name)
			}
		case KindGroup:
			if len(a.Value.paths) == 0 {
				return fmt.Errorf("argument %q: empty group", a.Name)
			}
		}
	}
	return nil
}

// ListWriter writes a group of paths to a list file and returns its path.
type ListWriter func(name string, paths []string) (string, error)

// Argv renders the request arguments. Group values are written through
// lists; a request with group values and no list writer is rejected.
func (r *Request) Argv(lists ListWriter) ([]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	argv := make([]string, 0, len(r.Args)+len(r.Raw))
	for _, a := range r.Args {
		value := a.Value.render()
		if a.Value.kind == KindGroup {
			if lists == nil {
				return nil, fmt.Errorf("argument %q: no list writer for group value", a.Name)
			}
			path, err := lists(a.Name, a.Value.paths)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", a.Name, err)
			}
			value = "^" + path
		}
		argv = append(argv, a.Name+"="+value)
	}
	return append(argv, r.Raw...), nil
}

// SplitFields splits free-form option text into tokens the way a POSIX
// shell would for plain words and quotes, without any expansion.
func SplitFields(s string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inField bool
		quote   rune
		escape  bool
	)
	for _, r := range s {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case quote != 0:
			if r == quote {
				quote = 0
			} else if r == '\\' && quote == '"' {
				escape = true
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escape = true
			inField = true
		case r == '"' || r == '\'':
			quote = r
			inField = true
		case unicode.IsSpace(r):
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if escape {
		return nil, fmt.Errorf("trailing backslash in %q", s)
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
