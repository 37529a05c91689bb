package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one key=value assignment in a configuration document.
type Entry struct {
	Key   string
	Value string
}

// NormKey returns the comparison form of a configuration key. Keys are
// case-insensitive and ignore surrounding blanks.
func NormKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Document is an immutable layer of overrides. Its head is either an
// include of its parent document or, for the root, the user's base
// configuration.
type Document struct {
	// Index is the document number within a run (conf<Index>).
	Index int

	// Path is where the document is written.
	Path string

	// Parent is the document this one includes. Nil for the root.
	Parent *Document

	// Base is the user configuration placed at the head of a root
	// document: an include ("^file") or inline assignments.
	Base string

	// Entries are the assignments of this layer, in order.
	Entries []Entry
}

// Lookup returns the value of key within this layer only. A later
// assignment of the same key shadows an earlier one.
func (d *Document) Lookup(key string) (string, bool) {
	k := NormKey(key)
	for i := len(d.Entries) - 1; i >= 0; i-- {
		if NormKey(d.Entries[i].Key) == k {
			return d.Entries[i].Value, true
		}
	}
	return "", false
}

// Ref returns the string that includes this document from another
// configuration ("^path").
func (d *Document) Ref() string {
	return "^" + d.Path
}

// Render returns the textual form of the document.
func (d *Document) Render() []byte {
	var buf bytes.Buffer
	if d.Parent != nil {
		buf.WriteString(d.Parent.Ref())
		buf.WriteByte('\n')
	} else if strings.TrimSpace(d.Base) != "" {
		buf.WriteString(strings.TrimSpace(d.Base))
		buf.WriteByte('\n')
	}
	for _, e := range d.Entries {
		fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
	}
	return buf.Bytes()
}

// Write persists the document. An existing file is never replaced.
func (d *Document) Write() error {
	if d.Path == "" {
		return fmt.Errorf("document %d has no path", d.Index)
	}
	f, err := os.OpenFile(d.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write config document: %w", err)
	}
	if _, err := f.Write(d.Render()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config document: %w", err)
	}
	return f.Close()
}

// Resolve returns the effective value of key as seen through d: the
// nearest layer that assigns the key wins, and the user base configuration
// (including any files it includes) is consulted last.
func Resolve(d *Document, key string) (string, bool, error) {
	for doc := d; doc != nil; doc = doc.Parent {
		if v, ok := doc.Lookup(key); ok {
			return v, true, nil
		}
		if doc.Parent == nil {
			base, err := ParseBase(doc.Base)
			if err != nil {
				return "", false, err
			}
			v, ok := base.Get(key)
			return v, ok, nil
		}
	}
	return "", false, nil
}

// Effective flattens the chain ending at d into a single assignment set.
func Effective(d *Document) (*Assignments, error) {
	var chain []*Document
	for doc := d; doc != nil; doc = doc.Parent {
		chain = append(chain, doc)
	}

	root := chain[len(chain)-1]
	out, err := ParseBase(root.Base)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, e := range chain[i].Entries {
			out.Set(e.Key, e.Value)
		}
	}
	return out, nil
}

// Assignments is an ordered, case-insensitive key=value set.
type Assignments struct {
	order  []string
	values map[string]Entry
}

// NewAssignments returns an empty set.
func NewAssignments() *Assignments {
	return &Assignments{values: make(map[string]Entry)}
}

// Set assigns key, keeping the position of the first assignment.
func (a *Assignments) Set(key, value string) {
	k := NormKey(key)
	if _, ok := a.values[k]; !ok {
		a.order = append(a.order, k)
	}
	a.values[k] = Entry{Key: strings.TrimSpace(key), Value: value}
}

// Get returns the value of key.
func (a *Assignments) Get(key string) (string, bool) {
	e, ok := a.values[NormKey(key)]
	return e.Value, ok
}

// Entries returns the assignments in first-assignment order.
func (a *Assignments) Entries() []Entry {
	out := make([]Entry, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.values[k])
	}
	return out
}

// Len returns the number of distinct keys.
func (a *Assignments) Len() int {
	return len(a.order)
}

// ParseBase parses a base configuration string: either "^file" or inline
// assignments separated by commas or newlines.
func ParseBase(base string) (*Assignments, error) {
	out := NewAssignments()
	p := &parser{visited: make(map[string]bool)}
	if err := p.parseText(strings.TrimSpace(base), "", out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseFile parses a configuration file, following its includes.
func ParseFile(path string) (*Assignments, error) {
	out := NewAssignments()
	p := &parser{visited: make(map[string]bool)}
	if err := p.parseFile(path, out); err != nil {
		return nil, err
	}
	return out, nil
}

type parser struct {
	visited map[string]bool
}

func (p *parser) parseFile(path string, out *Assignments) error {
	abs, err := filepath.Abs(os.ExpandEnv(path))
	if err != nil {
		return err
	}
	if p.visited[abs] {
		return fmt.Errorf("config include cycle at %s", abs)
	}
	p.visited[abs] = true
	defer delete(p.visited, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return p.parseText(string(data), filepath.Dir(abs), out)
}

func (p *parser) parseText(text, dir string, out *Assignments) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "^") {
			inc := os.ExpandEnv(strings.TrimSpace(line[1:]))
			if dir != "" && !filepath.IsAbs(inc) {
				inc = filepath.Join(dir, inc)
			}
			if err := p.parseFile(inc, out); err != nil {
				return err
			}
			continue
		}
		for _, assign := range splitTopLevel(line) {
			key, value, ok := strings.Cut(assign, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return fmt.Errorf("malformed config assignment %q", assign)
			}
			out.Set(key, strings.TrimSpace(value))
		}
	}
	return nil
}

// splitTopLevel splits s on commas that are not inside parentheses or
// quotes, so list values like "(a,b)" stay intact.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			if part := strings.TrimSpace(s[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}
