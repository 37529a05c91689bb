package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jlzhang001/skyloop/pkg/config"
)

// paramFlags are the run parameter flags shared by run and plan.
type paramFlags struct {
	in          string
	out         string
	niter       int
	pixsize     float64
	config      string
	itermap     string
	ref         string
	mask2       string
	mask3       string
	extra       string
	retain      bool
	workdir     string
	lastMasking string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	defaults := config.DefaultParams()
	flags := cmd.Flags()
	flags.StringVar(&f.in, "in", "", "input time-series: path, wildcard or ^list")
	flags.StringVar(&f.out, "out", "", "output map")
	flags.IntVar(&f.niter, "niter", defaults.Iterations, "number of map-maker passes")
	flags.Float64Var(&f.pixsize, "pixsize", 0, "pixel size in arcsec (0 leaves it to the map-maker)")
	flags.StringVar(&f.config, "config", defaults.Config, "base map-maker configuration: ^file or inline assignments")
	flags.StringVar(&f.itermap, "itermap", "", "cube receiving the map of every pass")
	flags.StringVar(&f.ref, "ref", "", "reference map defining the output grid")
	flags.StringVar(&f.mask2, "mask2", "", "second external mask")
	flags.StringVar(&f.mask3, "mask3", "", "third external mask")
	flags.StringVar(&f.extra, "extra", "", "additional map-maker options for every pass")
	flags.BoolVar(&f.retain, "retain", false, "keep the working area and extinction files")
	flags.StringVar(&f.workdir, "workdir", "", "directory the map-maker runs in (default current directory)")
	flags.StringVar(&f.lastMasking, "last-masking", string(defaults.LastMasking), "final-pass masking override mode (coupled, per-model)")
}

// load builds the run parameters: defaults, then the --params file, then
// positional IN OUT NITER, then any flag set on the command line.
func (f *paramFlags) load(cmd *cobra.Command, args []string) (config.Params, error) {
	p := config.DefaultParams()
	if paramsPath != "" {
		if err := config.LoadParamsFile(paramsPath, &p); err != nil {
			return p, err
		}
	}

	if len(args) > 0 {
		p.In = args[0]
	}
	if len(args) > 1 {
		p.Out = args[1]
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return p, fmt.Errorf("invalid NITER %q: %w", args[2], err)
		}
		p.Iterations = n
	}

	flags := cmd.Flags()
	if flags.Changed("in") {
		p.In = f.in
	}
	if flags.Changed("out") {
		p.Out = f.out
	}
	if flags.Changed("niter") {
		p.Iterations = f.niter
	}
	if flags.Changed("pixsize") {
		p.PixSize = f.pixsize
	}
	if flags.Changed("config") {
		p.Config = f.config
	}
	if flags.Changed("itermap") {
		p.IterMap = f.itermap
	}
	if flags.Changed("ref") {
		p.Ref = f.ref
	}
	if flags.Changed("mask2") {
		p.Mask2 = f.mask2
	}
	if flags.Changed("mask3") {
		p.Mask3 = f.mask3
	}
	if flags.Changed("extra") {
		p.Extra = f.extra
	}
	if flags.Changed("retain") {
		p.Retain = f.retain
	}
	if flags.Changed("workdir") {
		p.WorkDir = f.workdir
	}
	if flags.Changed("last-masking") {
		p.LastMasking = config.LastMasking(f.lastMasking)
	}
	return p, nil
}
