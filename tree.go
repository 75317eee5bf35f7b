package webmod

import "fmt"

// MaxModuleDepth bounds how deeply modules may nest.
const MaxModuleDepth = 64

// ValidateTree checks that root is a proper tree: no module is reachable twice
// and nesting stays within maxDepth. A maxDepth of zero uses MaxModuleDepth.
func ValidateTree(root *Module, maxDepth int) error {
	if root == nil {
		return ErrModuleNil
	}
	if maxDepth <= 0 {
		maxDepth = MaxModuleDepth
	}
	seen := make(map[*Module]struct{})
	return validateModule(root, 0, maxDepth, seen)
}

func validateModule(m *Module, depth, maxDepth int, seen map[*Module]struct{}) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: module %q at depth %d (max %d)", ErrModuleTreeTooDeep, m.Name, depth, maxDepth)
	}
	if _, ok := seen[m]; ok {
		return fmt.Errorf("%w: %q", ErrModuleCycle, m.Name)
	}
	seen[m] = struct{}{}
	for i, child := range m.Modules {
		if child == nil {
			return fmt.Errorf("%w: child %d of %q", ErrModuleNil, i, m.Name)
		}
		if err := validateModule(child, depth+1, maxDepth, seen); err != nil {
			return err
		}
	}
	return nil
}
