package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LastMasking selects how the final-pass masking override is emitted.
type LastMasking string

const (
	// LastMaskingCoupled emits a single ast.zero_notlast override when any
	// sub-model asks to skip masking on the last pass.
	LastMaskingCoupled LastMasking = "coupled"
	// LastMaskingPerModel emits <model>.zero_notlast for each sub-model
	// that asks for it.
	LastMaskingPerModel LastMasking = "per-model"
)

// DefaultBaseConfig is the map-maker configuration used when none is given.
const DefaultBaseConfig = "^$STARLINK_DIR/share/smurf/dimmconfig.lis"

// Params are the run parameters of one skyloop invocation.
type Params struct {
	// In is the input time-series group: a path, a wildcard or "^list".
	In string `yaml:"in" validate:"required"`

	// Out is the final map.
	Out string `yaml:"out" validate:"required"`

	// Iterations is the number of map-maker passes.
	Iterations int `yaml:"niter" validate:"min=1,max=1000"`

	// PixSize is the pixel size in arcsec. Zero leaves it to the map-maker.
	PixSize float64 `yaml:"pixsize" validate:"omitempty,min=0.01,max=1000"`

	// Config is the base map-maker configuration.
	Config string `yaml:"config" validate:"required"`

	// IterMap, when set, receives a cube of all per-pass maps.
	IterMap string `yaml:"itermap"`

	// Ref defines the output grid.
	Ref string `yaml:"ref"`

	// Mask2 and Mask3 are optional external masks.
	Mask2 string `yaml:"mask2"`
	Mask3 string `yaml:"mask3"`

	// Extra holds additional map-maker options used on every pass.
	Extra string `yaml:"extra"`

	// Retain keeps the working area and side artifacts.
	Retain bool `yaml:"retain"`

	// WorkDir is the directory the map-maker runs in and writes its side
	// artifacts to. Empty means the current directory.
	WorkDir string `yaml:"workdir"`

	// LastMasking selects the final-pass masking override mode.
	LastMasking LastMasking `yaml:"last_masking" validate:"omitempty,oneof=coupled per-model"`

	// CleanedPattern matches the cleaned time-series files exported by
	// the first pass.
	CleanedPattern string `yaml:"cleaned_pattern" validate:"required"`

	// ExtPattern matches the extinction files exported by the first pass.
	ExtPattern string `yaml:"ext_pattern" validate:"required"`
}

// DefaultParams returns parameters with every default filled in.
func DefaultParams() Params {
	return Params{
		Iterations:     10,
		Config:         DefaultBaseConfig,
		LastMasking:    LastMaskingCoupled,
		CleanedPattern: "s*_con_res_cln.sdf",
		ExtPattern:     "s*_con_ext.sdf",
	}
}

// LoadParamsFile overlays the YAML parameter file at path onto p. The file
// is checked against the parameter schema before decoding.
func LoadParamsFile(path string, p *Params) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse params file %s: %w", path, err)
	}
	if err := ValidateParamsDocument(raw); err != nil {
		return fmt.Errorf("params file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode params file %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks the merged parameters.
func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid parameters: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// CheckInputs verifies that every user-supplied input exists and that the
// outputs can be written. It runs before any external tool is invoked.
func (p *Params) CheckInputs() error {
	var errs []error

	if err := checkGroup(p.In); err != nil {
		errs = append(errs, fmt.Errorf("in: %w", err))
	}
	if strings.HasPrefix(strings.TrimSpace(p.Config), "^") {
		inc := os.ExpandEnv(strings.TrimSpace(strings.TrimSpace(p.Config)[1:]))
		if err := checkFile(inc); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}
	for name, path := range map[string]string{"ref": p.Ref, "mask2": p.Mask2, "mask3": p.Mask3} {
		if path == "" {
			continue
		}
		if err := checkFile(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, path := range map[string]string{"out": p.Out, "itermap": p.IterMap} {
		if path == "" {
			continue
		}
		if err := checkFile(filepath.Dir(path)); err != nil {
			errs = append(errs, fmt.Errorf("%s: output directory: %w", name, err))
		}
	}
	if p.WorkDir != "" {
		if err := checkFile(p.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("workdir: %w", err))
		}
	}

	return errors.Join(errs...)
}

// checkGroup accepts a "^list" file, an existing path or a wildcard that
// matches at least one file.
func checkGroup(group string) error {
	group = strings.TrimSpace(group)
	if strings.HasPrefix(group, "^") {
		return checkFile(os.ExpandEnv(group[1:]))
	}
	for _, part := range splitTopLevel(group) {
		matches, err := filepath.Glob(os.ExpandEnv(part))
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", part, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("%s: no such file", part)
		}
	}
	return nil
}

func checkFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return nil
}

// Absolute returns a copy of p with every file parameter made absolute, so
// the parameters keep their meaning when tools run in another directory or
// read them from a document stored elsewhere.
func (p Params) Absolute() (Params, error) {
	var err error
	abs := func(path string) string {
		if path == "" || err != nil {
			return path
		}
		var a string
		a, err = filepath.Abs(os.ExpandEnv(path))
		return a
	}
	include := func(v string) string {
		t := strings.TrimSpace(v)
		if !strings.HasPrefix(t, "^") {
			return v
		}
		return "^" + abs(strings.TrimSpace(t[1:]))
	}

	q := p
	if strings.HasPrefix(strings.TrimSpace(p.In), "^") {
		q.In = include(p.In)
	} else {
		parts := splitTopLevel(p.In)
		for i, part := range parts {
			parts[i] = abs(part)
		}
		q.In = strings.Join(parts, ",")
	}
	q.Config = include(p.Config)
	q.Out = abs(p.Out)
	q.IterMap = abs(p.IterMap)
	q.Ref = abs(p.Ref)
	q.Mask2 = abs(p.Mask2)
	q.Mask3 = abs(p.Mask3)
	q.WorkDir = abs(p.WorkDir)
	if err != nil {
		return p, fmt.Errorf("resolve paths: %w", err)
	}
	return q, nil
}
