package project

import (
	"fmt"
	"slices"
	"strings"
)

// SortModules orders modules so that each comes after the modules of the same build it depends on.
// Modules without relation to each other keep their input order.
func SortModules(modules []Module) ([]Module, error) {
	index := make(map[string]int, len(modules))
	for i, m := range modules {
		if j, ok := index[m.Key()]; ok {
			return nil, fmt.Errorf("%w: %s declared by %s and %s",
				ErrDuplicateModule, m.Key(), modules[j].Descriptor, m.Descriptor)
		}
		index[m.Key()] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(modules))
	sorted := make([]Module, 0, len(modules))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			cycle := append(slices.Clone(stack[slices.Index(stack, modules[i].Key()):]), modules[i].Key())
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
		}
		state[i] = visiting
		stack = append(stack, modules[i].Key())
		for _, dep := range modules[i].Dependencies {
			j, ok := index[dep.Key()]
			if !ok {
				continue
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		sorted = append(sorted, modules[i])
		return nil
	}

	for i := range modules {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
