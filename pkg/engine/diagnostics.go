package engine

import (
	"context"
	"errors"
	"fmt"
)

// Assembler stacks the per-iteration maps into the diagnostics cube.
type Assembler struct {
	stacker Stacker
}

// NewAssembler returns an assembler using stacker.
func NewAssembler(stacker Stacker) *Assembler {
	return &Assembler{stacker: stacker}
}

// Assemble writes a cube to out with one plane per record, in iteration
// order.
func (a *Assembler) Assemble(ctx context.Context, records []Record, out string) error {
	if len(records) == 0 {
		return errors.New("no iterations to stack")
	}
	inputs := make([]string, len(records))
	for n, rec := range records {
		if rec.Index != n+1 {
			return fmt.Errorf("iteration records out of order at %d", rec.Index)
		}
		inputs[n] = rec.Output
	}
	return a.stacker.Stack(ctx, inputs, out)
}
