package engine

import (
	"fmt"

	"github.com/jlzhang001/skyloop/pkg/config"
)

// Step is one planned iteration.
type Step struct {
	Index       int            `json:"index"`
	Role        string         `json:"role"`
	Config      string         `json:"config"`
	ConfigIndex int            `json:"config_index"`
	Created     bool           `json:"created"`
	Emitted     []config.Entry `json:"emitted,omitempty"`
}

// Plan composes the configuration documents of an n-iteration run without
// invoking the map-maker, reporting which overrides each iteration adds.
// It follows the same rules as a real run.
func Plan(lc *Lifecycle, composer *config.Composer, n int) ([]Step, error) {
	if n < 1 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", n)
	}

	doc, created, err := composer.Compose(1, config.RoleFirst, nil)
	if err != nil {
		return nil, err
	}
	steps := []Step{{
		Index:       1,
		Role:        config.RoleFirst.String(),
		Config:      doc.Path,
		ConfigIndex: doc.Index,
		Created:     created,
	}}

	acc := config.NewOverrides()
	for i := 2; i <= n; i++ {
		role := config.RoleFor(i, n)
		var emitted []config.Entry
		for _, key := range lc.Advance(i, n, acc) {
			v, _ := acc.Get(key)
			emitted = append(emitted, config.Entry{Key: key, Value: v})
		}

		doc, created, err := composer.Compose(i, role, acc)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Index:       i,
			Role:        role.String(),
			Config:      doc.Path,
			ConfigIndex: doc.Index,
			Created:     created,
			Emitted:     emitted,
		})
	}
	return steps, nil
}
