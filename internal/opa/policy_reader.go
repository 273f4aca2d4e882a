package opa

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

// loadPolicies collects every .rego module under root, nested folders
// included. Rego unit tests (*_test.rego) are not policies and are skipped.
// Keys are paths relative to root so equally named files in different
// folders do not collide.
func loadPolicies(fsys fs.FS, root string) (map[string]string, error) {
	policies := make(map[string]string)

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || path.Ext(name) != ".rego" || strings.HasSuffix(name, "_test.rego") {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading policy %s: %w", p, err)
		}
		key := p
		if root != "." {
			key = strings.TrimPrefix(p, root+"/")
		}
		policies[key] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read policies: %w", err)
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("no .rego policies found under %s", root)
	}

	zap.S().Named("opa").Debugw("policies loaded", "root", root, "count", len(policies))
	return policies, nil
}
