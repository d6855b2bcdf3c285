package engine

import (
	"sightline/internal/config"
	"sightline/internal/normalize"
)

type ClassSet map[string]struct{}

func buildClassSet(values []string) ClassSet {
	if len(values) == 0 {
		return nil
	}
	set := make(ClassSet, len(values))
	for _, v := range values {
		class := normalize.Class(v)
		if class == "" {
			continue
		}
		set[class] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (s ClassSet) Contains(class string) bool {
	if s == nil {
		return false
	}
	_, ok := s[normalize.Class(class)]
	return ok
}

// FilterRules is the compiled form of the filter section, rebuilt on every
// config update.
type FilterRules struct {
	DangerDistance   float64
	PriorityDistance float64
	CenterDistance   float64
	MaxResults       int
	Priority         ClassSet
	Ignore           ClassSet
}

func buildFilterRules(cfg *config.Config) *FilterRules {
	return &FilterRules{
		DangerDistance:   cfg.Filter.DangerDistance,
		PriorityDistance: cfg.Filter.PriorityDistance,
		CenterDistance:   cfg.Filter.CenterDistance,
		MaxResults:       cfg.Filter.MaxResults,
		Priority:         buildClassSet(cfg.Filter.PriorityClasses),
		Ignore:           buildClassSet(cfg.Filter.IgnoreClasses),
	}
}
