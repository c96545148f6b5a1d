package cli

import (
	"fmt"

	"github.com/itchyny/goxq"
)

// variableValues returns the values of the external variables of the
// program, in declaration order, from the values given by --var. A value
// is converted to the declared item type when it is atomic.
func variableValues(vars []*goxq.Variable, raws map[string]string) ([]goxq.Sequence, error) {
	vals := make([]goxq.Sequence, len(vars))
	for i, v := range vars {
		raw, ok := raws[v.Name]
		if !ok {
			if v.Type.Card.AllowsZero() {
				vals[i] = goxq.Extent{}
				continue
			}
			return nil, fmt.Errorf("variable $%s is not set", v.Name)
		}
		val, err := variableValue(v, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value of $%s: %w", v.Name, err)
		}
		vals[i] = goxq.Singleton(val)
	}
	for name := range raws {
		if !declared(vars, name) {
			return nil, fmt.Errorf("variable $%s is not declared", name)
		}
	}
	return vals, nil
}

func variableValue(v *goxq.Variable, raw string) (goxq.Item, error) {
	t := v.Type.Item
	if !t.IsAtomic() || t == goxq.TypeAnyAtomic {
		return goxq.UntypedAtomic(raw), nil
	}
	return goxq.Cast(goxq.UntypedAtomic(raw), t)
}

func declared(vars []*goxq.Variable, name string) bool {
	for _, v := range vars {
		if v.Name == name {
			return true
		}
	}
	return false
}
