package invoke

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSelect selects neither wavelength variant of qualified keys, so
// 450um and 850um settings resolve the same way.
const DefaultSelect = "'450=0,850=0'"

// ConfigEcho reports configuration values as the map-maker would see them,
// with the map-maker defaults file applied.
type ConfigEcho struct {
	Runner   *Runner
	Command  string
	Defaults string
	Select   string
}

// Request builds the query for name in config.
func (c *ConfigEcho) Request(name, config string) *Request {
	sel := c.Select
	if sel == "" {
		sel = DefaultSelect
	}
	return NewRequest("configecho", c.Command).
		Set("name", String(name)).
		Set("config", String(config)).
		SetIf(c.Defaults != "", "defaults", Path(c.Defaults)).
		Set("select", String(sel))
}

// Value returns the textual value of name.
func (c *ConfigEcho) Value(ctx context.Context, name, config string) (string, error) {
	res, err := c.Runner.Run(ctx, c.Request(name, config))
	if err != nil {
		return "", err
	}
	return lastLine(res.Stdout), nil
}

// Int returns the integer value of name. Values printed in floating point
// form are truncated.
func (c *ConfigEcho) Int(ctx context.Context, name, config string) (int, error) {
	v, err := c.Value(ctx, name, config)
	if err != nil {
		return 0, err
	}
	return parseInt(name, v)
}

func parseInt(name, v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("configecho: %s: not a number: %q", name, v)
	}
	return int(f), nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
