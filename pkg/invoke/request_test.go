package invoke

import (
	"reflect"
	"strings"
	"testing"
)

func TestRequestArgv(t *testing.T) {
	r := NewRequest("makemap", "/star/bin/smurf/makemap").
		Set("in", String("^raw.lis")).
		Set("out", Path("map.sdf")).
		Set("pixsize", Float(4)).
		Set("numiter", Int(-3)).
		Set("retain", Bool(false)).
		Set("config", Include("/tmp/conf1"))
	r.Raw = []string{"msg_filter=quiet"}

	got, err := r.Argv(nil)
	if err != nil {
		t.Fatalf("Argv() error = %v", err)
	}
	want := []string{
		"in=^raw.lis",
		"out=map.sdf",
		"pixsize=4",
		"numiter=-3",
		"retain=false",
		"config=^/tmp/conf1",
		"msg_filter=quiet",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Argv() = %v, want %v", got, want)
	}
}

func TestRequestGroupNeedsListWriter(t *testing.T) {
	r := NewRequest("paste", "paste").Set("in", Group("a.sdf", "b.sdf"))
	if _, err := r.Argv(nil); err == nil {
		t.Fatal("expected an error without a list writer")
	}

	var gotPaths []string
	argv, err := r.Argv(func(name string, paths []string) (string, error) {
		gotPaths = paths
		return "/ws/" + name + "0.lis", nil
	})
	if err != nil {
		t.Fatalf("Argv() error = %v", err)
	}
	if argv[0] != "in=^/ws/in0.lis" {
		t.Errorf("argv[0] = %q", argv[0])
	}
	if !reflect.DeepEqual(gotPaths, []string{"a.sdf", "b.sdf"}) {
		t.Errorf("list writer got %v", gotPaths)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		req    *Request
		errMsg string
	}{
		{"no command", NewRequest("x", ""), "command"},
		{"duplicate", NewRequest("x", "x").Set("ref", Path("a")).Set("REF", Path("b")), "duplicate"},
		{"bad name", NewRequest("x", "x").Set("a=b", String("c")), "invalid"},
		{"empty path", NewRequest("x", "x").Set("out", Path("")), "empty path"},
		{"empty group", NewRequest("x", "x").Set("in", Group()), "empty group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected %q in %v", tt.errMsg, err)
			}
		})
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  a=1   b=2 ", []string{"a=1", "b=2"}},
		{`title="My map" units='pW'`, []string{"title=My map", "units=pW"}},
		{`a\ b c`, []string{"a b", "c"}},
		{`x="say \"hi\""`, []string{`x=say "hi"`}},
		{`""`, []string{""}},
	}
	for _, tt := range tests {
		got, err := SplitFields(tt.in)
		if err != nil {
			t.Errorf("SplitFields(%q) error = %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitFields(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{`a="open`, `trailing\`} {
		if _, err := SplitFields(bad); err == nil {
			t.Errorf("SplitFields(%q): expected an error", bad)
		}
	}
}
