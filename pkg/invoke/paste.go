package invoke

import (
	"context"
	"errors"
)

// StackShift places each input one plane further along the third axis.
const StackShift = "[0,0,1]"

// Paste stacks 2-D images into a cube.
type Paste struct {
	Runner  *Runner
	Command string
}

// Request builds the invocation stacking inputs into out.
func (p *Paste) Request(inputs []string, out string) (*Request, error) {
	if len(inputs) == 0 {
		return nil, errors.New("paste: no inputs")
	}
	if out == "" {
		return nil, errors.New("paste: output is required")
	}
	return NewRequest("paste", p.Command).
		Set("in", Group(inputs...)).
		Set("out", Path(out)).
		Set("shift", String(StackShift)), nil
}

// Stack writes a cube holding inputs, in order, to out.
func (p *Paste) Stack(ctx context.Context, inputs []string, out string) error {
	r, err := p.Request(inputs, out)
	if err != nil {
		return err
	}
	_, err = p.Runner.Run(ctx, r)
	return err
}
