package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// manifestFields is the subset of a package manifest the scanner reads.
// Parsing is deliberately shallow (gjson field lookups) rather than a full
// struct unmarshal: the manifest carries arbitrary third-party fields that
// must round-trip untouched when the Package-Manager Adapter later rewrites
// it (see internal/pm), so nothing here ever re-serializes a manifest.
type manifestFields struct {
	Name            string
	Version         string
	Dependencies    map[string]string
	DevDependencies map[string]string
}

func readManifest(path string) (manifestFields, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from workspace glob expansion
	if err != nil {
		return manifestFields{}, err
	}
	if !gjson.ValidBytes(data) {
		return manifestFields{}, fmt.Errorf("invalid JSON in %s", path)
	}

	root := gjson.ParseBytes(data)
	name := root.Get("name").String()
	if name == "" {
		return manifestFields{}, fmt.Errorf("manifest %s is missing \"name\"", path)
	}

	m := manifestFields{
		Name:            name,
		Version:         root.Get("version").String(),
		Dependencies:    stringMap(root.Get("dependencies")),
		DevDependencies: stringMap(root.Get("devDependencies")),
	}
	return m, nil
}

// RootGlobs reads the "workspaces" array from root's package.json (npm/yarn
// workspace convention). Falls back to "packages/*" if the field is absent
// or root has no manifest at all, so a bare producer still scans.
func RootGlobs(root string) []string {
	data, err := os.ReadFile(filepath.Join(root, "package.json")) //nolint:gosec // G304: fixed filename under a caller-supplied producer root
	if err != nil {
		return []string{"packages/*"}
	}
	result := gjson.GetBytes(data, "workspaces")
	if !result.IsArray() {
		return []string{"packages/*"}
	}
	var globs []string
	result.ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			globs = append(globs, s)
		}
		return true
	})
	if len(globs) == 0 {
		return []string{"packages/*"}
	}
	return globs
}

func stringMap(r gjson.Result) map[string]string {
	if !r.Exists() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}
