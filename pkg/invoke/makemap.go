package invoke

import (
	"context"
	"errors"
)

// MethodIter selects the iterative map-maker algorithm.
const MethodIter = "iter"

// MapRequest is one map-maker invocation.
type MapRequest struct {
	// Iteration is the 1-based loop iteration, used for logging only.
	Iteration int

	// InGroup is the raw input group expression given by the user.
	InGroup string

	// InFiles are explicit input files. They take precedence over InGroup.
	InFiles []string

	// Out is the sky map to create.
	Out string

	// Config is the path of the configuration document.
	Config string

	// PixSize is the pixel size in arcsec. Zero leaves it to the tool.
	PixSize float64

	// Ref is the user's reference image.
	Ref string

	// InitialSky is the previous iteration's sky map.
	InitialSky string

	Mask2 string
	Mask3 string

	// Extra are passthrough tokens.
	Extra []string
}

// MapResult is the outcome of a map-maker invocation.
type MapResult struct {
	Output string

	// Produced lists side files the tool reported writing, if known.
	Produced []string

	Result *Result
}

// MakeMap runs the map-maker.
type MakeMap struct {
	Runner  *Runner
	Command string
}

// Request builds the invocation for req. The previous sky map, when
// present, is passed as the reference so the tool grids onto it and
// imports it as the initial sky; otherwise the user's reference is used.
func (m *MakeMap) Request(req MapRequest) (*Request, error) {
	if req.Out == "" {
		return nil, errors.New("makemap: output is required")
	}
	if req.Config == "" {
		return nil, errors.New("makemap: configuration document is required")
	}

	r := NewRequest("makemap", m.Command)
	switch {
	case len(req.InFiles) > 0:
		r.Set("in", Group(req.InFiles...))
	case req.InGroup != "":
		r.Set("in", String(req.InGroup))
	default:
		return nil, errors.New("makemap: no input data")
	}

	r.Set("out", Path(req.Out)).
		Set("method", String(MethodIter)).
		Set("config", Include(req.Config)).
		SetIf(req.PixSize > 0, "pixsize", Float(req.PixSize))

	// ref is a single parameter: from the second pass on it carries the
	// previous map, which fixes the same grid as the user's reference.
	ref := req.Ref
	if req.InitialSky != "" {
		ref = req.InitialSky
	}
	r.SetIf(ref != "", "ref", Path(ref)).
		SetIf(req.Mask2 != "", "mask2", Path(req.Mask2)).
		SetIf(req.Mask3 != "", "mask3", Path(req.Mask3))

	r.Raw = append(r.Raw, req.Extra...)
	return r, nil
}

// Make runs one map-maker invocation.
func (m *MakeMap) Make(ctx context.Context, req MapRequest) (*MapResult, error) {
	r, err := m.Request(req)
	if err != nil {
		return nil, err
	}
	res, err := m.Runner.Run(ctx, r)
	if err != nil {
		return nil, err
	}
	return &MapResult{Output: req.Out, Result: res}, nil
}
