package engine

import (
	"context"
	"fmt"

	"github.com/jlzhang001/skyloop/pkg/config"
)

// Lifecycle tracks the zero-masking controls of every sub-model across a
// run and turns threshold crossings into configuration overrides.
type Lifecycle struct {
	counters map[SubModel]*Counters
	masking  config.LastMasking
}

// NewLifecycle returns a lifecycle starting from counters. Sub-models
// missing from counters are inactive.
func NewLifecycle(counters map[SubModel]Counters, masking config.LastMasking) *Lifecycle {
	l := &Lifecycle{counters: make(map[SubModel]*Counters, len(SubModels)), masking: masking}
	for _, m := range SubModels {
		c := counters[m]
		l.counters[m] = &c
	}
	return l
}

// ReadLifecycle asks the introspector for the three controls of every
// sub-model in the base configuration.
func ReadLifecycle(ctx context.Context, intro Introspector, base string, masking config.LastMasking) (*Lifecycle, error) {
	counters := make(map[SubModel]Counters, len(SubModels))
	for _, m := range SubModels {
		var c Counters
		for _, q := range []struct {
			key string
			dst *int
		}{
			{config.ZeroNIter(string(m)), &c.DisableAfter},
			{config.ZeroNotLast(string(m)), &c.SkipLast},
			{config.ZeroFreeze(string(m)), &c.FreezeAfter},
		} {
			v, err := intro.Int(ctx, q.key, base)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", q.key, err)
			}
			*q.dst = v
		}
		counters[m] = c
	}
	return NewLifecycle(counters, masking), nil
}

// Counters returns the current counters of m.
func (l *Lifecycle) Counters(m SubModel) Counters {
	if c, ok := l.counters[m]; ok {
		return *c
	}
	return Counters{}
}

// Advance applies the thresholds for iteration i of n to acc and returns
// the keys whose value changed. A threshold fires at most once; its
// counter is retired when it does.
func (l *Lifecycle) Advance(i, n int, acc *config.Overrides) []string {
	var changed []string
	set := func(key string, v int) {
		if acc.Set(key, config.Int(v)) {
			changed = append(changed, key)
		}
	}

	for _, m := range SubModels {
		c := l.counters[m]
		if c.DisableAfter > 0 && i > c.DisableAfter {
			c.DisableAfter = 0
			set(config.ZeroNIter(string(m)), -1)
		}
	}

	for _, m := range SubModels {
		c := l.counters[m]
		if c.FreezeAfter > 0 && i > c.FreezeAfter+1 {
			c.FreezeAfter = 0
			set(config.ZeroFreeze(string(m)), -1)
		}
	}

	if i == n {
		for _, m := range SubModels {
			if l.counters[m].SkipLast == 0 {
				continue
			}
			if l.masking == config.LastMaskingPerModel {
				set(config.ZeroNotLast(string(m)), 1)
			} else {
				// Coupled: any sub-model restores the shared key.
				set(config.ZeroNotLast(string(SubModelAST)), 1)
			}
		}
	}

	return changed
}
