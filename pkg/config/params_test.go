package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeParams(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skyloop.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParamsFile(t *testing.T) {
	path := writeParams(t, `
in: ^files.lis
out: map.sdf
niter: 6
pixsize: 4
retain: true
last_masking: per-model
`)
	p := DefaultParams()
	if err := LoadParamsFile(path, &p); err != nil {
		t.Fatalf("LoadParamsFile() error = %v", err)
	}

	if p.In != "^files.lis" || p.Out != "map.sdf" {
		t.Errorf("unexpected in/out %q %q", p.In, p.Out)
	}
	if p.Iterations != 6 || p.PixSize != 4 || !p.Retain {
		t.Errorf("unexpected values %+v", p)
	}
	if p.LastMasking != LastMaskingPerModel {
		t.Errorf("LastMasking = %q", p.LastMasking)
	}
	// Defaults survive for keys the file does not set.
	if p.Config != DefaultBaseConfig || p.CleanedPattern == "" {
		t.Errorf("defaults lost: %+v", p)
	}
}

func TestLoadParamsFileSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"niter too large", "niter: 5000\n", "schema"},
		{"niter zero", "niter: 0\n", "schema"},
		{"unknown key", "itermaps: cube.sdf\n", "schema"},
		{"bad masking mode", "last_masking: sometimes\n", "schema"},
		{"pixsize too small", "pixsize: 0.001\n", "schema"},
		{"not yaml", "in: [unclosed\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			err := LoadParamsFile(writeParams(t, tt.content), &p)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected %q in error, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Params)
		expectError bool
	}{
		{"valid", func(p *Params) {}, false},
		{"missing in", func(p *Params) { p.In = "" }, true},
		{"missing out", func(p *Params) { p.Out = "" }, true},
		{"zero iterations", func(p *Params) { p.Iterations = 0 }, true},
		{"too many iterations", func(p *Params) { p.Iterations = 1001 }, true},
		{"pixsize unset", func(p *Params) { p.PixSize = 0 }, false},
		{"pixsize too big", func(p *Params) { p.PixSize = 2000 }, true},
		{"bad masking", func(p *Params) { p.LastMasking = "always" }, true},
		{"missing config", func(p *Params) { p.Config = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			p.In = "raw.sdf"
			p.Out = "map.sdf"
			p.PixSize = 4
			tt.modify(&p)
			err := p.Validate()
			if tt.expectError && err == nil {
				t.Error("expected an error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckInputs(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "s8a_0001.sdf")
	ref := filepath.Join(dir, "ref.sdf")
	conf := filepath.Join(dir, "dimm.lis")
	for _, p := range []string{raw, ref, conf} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p := DefaultParams()
	p.In = filepath.Join(dir, "s8a_*.sdf")
	p.Out = filepath.Join(dir, "out.sdf")
	p.Config = "^" + conf
	p.Ref = ref
	if err := p.CheckInputs(); err != nil {
		t.Fatalf("CheckInputs() error = %v", err)
	}

	p.Mask2 = filepath.Join(dir, "missing-mask.sdf")
	p.In = filepath.Join(dir, "s4a_*.sdf")
	err := p.CheckInputs()
	if err == nil {
		t.Fatal("expected missing inputs to be reported")
	}
	for _, want := range []string{"mask2", "in:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STARLINK_DIR", "/opt/star")
	t.Setenv("SMURF_DIR", "")
	t.Setenv("KAPPA_DIR", "/opt/kappa")
	t.Setenv("STAR_TEMP", "/scratch")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.MakeMap() != "/opt/star/bin/smurf/makemap" {
		t.Errorf("MakeMap() = %s", e.MakeMap())
	}
	if e.ConfigEcho() != "/opt/kappa/configecho" {
		t.Errorf("ConfigEcho() = %s", e.ConfigEcho())
	}
	if e.StarTemp != "/scratch" {
		t.Errorf("StarTemp = %s", e.StarTemp)
	}
	if e.LogLevel != "info" {
		t.Errorf("LogLevel default = %s", e.LogLevel)
	}
}

func TestParamsAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	p.In = "s8a*.sdf,s8b*.sdf"
	p.Out = "map.sdf"
	p.Config = "^conf/bright.lis"
	p.Ref = "/data/ref.sdf"

	got, err := p.Absolute()
	if err != nil {
		t.Fatalf("Absolute() error = %v", err)
	}
	if want := filepath.Join(wd, "s8a*.sdf") + "," + filepath.Join(wd, "s8b*.sdf"); got.In != want {
		t.Errorf("In = %q, want %q", got.In, want)
	}
	if got.Out != filepath.Join(wd, "map.sdf") {
		t.Errorf("Out = %q", got.Out)
	}
	if got.Config != "^"+filepath.Join(wd, "conf/bright.lis") {
		t.Errorf("Config = %q", got.Config)
	}
	if got.Ref != "/data/ref.sdf" || got.Mask2 != "" {
		t.Errorf("Ref = %q, Mask2 = %q", got.Ref, got.Mask2)
	}

	p.Config = "numiter=5"
	p.In = "^raw.lis"
	got, _ = p.Absolute()
	if got.Config != "numiter=5" {
		t.Errorf("inline config changed to %q", got.Config)
	}
	if got.In != "^"+filepath.Join(wd, "raw.lis") {
		t.Errorf("In = %q", got.In)
	}
}
