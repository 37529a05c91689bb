package config

import (
	"fmt"
	"reflect"
)

// Role selects the fixed overrides of a pass.
type Role int

const (
	// RoleFirst is the pass that reads raw data and exports the reusable
	// bundle.
	RoleFirst Role = iota
	// RoleMiddle is any pass that is neither first nor last.
	RoleMiddle
	// RoleLast is the final pass, writing the user's output.
	RoleLast
)

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "first"
	case RoleMiddle:
		return "middle"
	case RoleLast:
		return "last"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// RoleFor returns the role of pass i of n. A single-pass run only has a
// first pass.
func RoleFor(i, n int) Role {
	switch {
	case i <= 1:
		return RoleFirst
	case i >= n:
		return RoleLast
	default:
		return RoleMiddle
	}
}

// Namer allocates document paths.
type Namer interface {
	NewConfig() (path string, index int)
}

// Composer derives the configuration document of each pass from the base
// configuration, the role of the pass and the accumulated overrides. Every
// derived document includes the first-pass document, so later passes always
// inherit the original base rather than a prior derived layer.
type Composer struct {
	namer Namer
	base  string

	first  *Document
	latest *Document
	docs   []*Document
}

// NewComposer returns a composer writing documents allocated by namer.
// base is the user configuration: "^file" or inline assignments.
func NewComposer(namer Namer, base string) *Composer {
	return &Composer{namer: namer, base: base}
}

// Compose returns the document for the given pass. created is false when
// an existing document already carries exactly the required overrides, in
// which case nothing is written.
func (c *Composer) Compose(iteration int, role Role, acc *Overrides) (doc *Document, created bool, err error) {
	if role == RoleFirst {
		if c.first != nil {
			return c.first, false, nil
		}
		doc = &Document{Base: c.base, Entries: FirstOverrides()}
		if err := c.persist(doc); err != nil {
			return nil, false, err
		}
		c.first = doc
		return doc, true, nil
	}

	if c.first == nil {
		return nil, false, fmt.Errorf("iteration %d: first-pass document has not been composed", iteration)
	}

	entries := append(SubsequentOverrides(), acc.Entries()...)
	if c.latest != nil && c.latest != c.first && reflect.DeepEqual(c.latest.Entries, entries) {
		return c.latest, false, nil
	}

	doc = &Document{Parent: c.first, Entries: entries}
	if err := c.persist(doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (c *Composer) persist(doc *Document) error {
	doc.Path, doc.Index = c.namer.NewConfig()
	if err := doc.Write(); err != nil {
		return err
	}
	c.latest = doc
	c.docs = append(c.docs, doc)
	return nil
}

// First returns the first-pass document, or nil before it is composed.
func (c *Composer) First() *Document {
	return c.first
}

// Documents returns every document written so far, in order.
func (c *Composer) Documents() []*Document {
	return append([]*Document(nil), c.docs...)
}
