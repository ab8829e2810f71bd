package kb

import (
	"time"

	"github.com/project-guardian/guardian/internal/lockfile"
)

// UpdateModuleInfo merges info into the named module's entry in
// indexed/modules.json under the file lock. Existing keys not present
// in info are preserved.
func (k *KB) UpdateModuleInfo(moduleName string, info map[string]any, opts lockfile.Options) error {
	path := k.IndexedFile("modules.json")
	return lockfile.Update(path, map[string]any{}, func(modules map[string]any) (map[string]any, error) {
		entry, _ := modules[moduleName].(map[string]any)
		if entry == nil {
			entry = make(map[string]any)
		}
		for key, val := range info {
			entry[key] = val
		}
		entry["last_updated"] = time.Now().UTC().Format(time.RFC3339)
		modules[moduleName] = entry
		return modules, nil
	}, opts)
}

// UpdateArchitecture merges data into indexed/architecture.json under
// the file lock.
func (k *KB) UpdateArchitecture(data map[string]any, opts lockfile.Options) error {
	path := k.IndexedFile("architecture.json")
	return lockfile.Update(path, map[string]any{}, func(arch map[string]any) (map[string]any, error) {
		for key, val := range data {
			arch[key] = val
		}
		arch["last_updated"] = time.Now().UTC().Format(time.RFC3339)
		return arch, nil
	}, opts)
}
