package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Will-Banksy/searchlight/internal/validator"
	"github.com/Will-Banksy/searchlight/pkg/filetypes"
	"github.com/Will-Banksy/searchlight/pkg/registry"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

const version = "0.1.0"

// pluginCachePath is where listCapabilities caches a compiled file-type
// listing between runs, so a `list` call against an unchanged config
// doesn't recompile the whole pattern table just to print names.
func pluginCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".searchlight-cache.json"
	}
	return filepath.Join(dir, "searchlight", "filetypes.json")
}

// listCapabilities prints every registered validator and file type,
// consulting the plugin cache first so unchanged file-type definitions
// skip FileTypeSpec recompilation.
func listCapabilities(wires []filetypes.Wire) error {
	reg := validator.NewRegistry(0)

	fmt.Println("Registered Validators")
	fmt.Println("=====================")
	for _, name := range reg.List() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println()

	cache := registry.NewPluginCache(pluginCachePath())
	_ = cache.Load()

	fmt.Println("Registered File Types")
	fmt.Println("=====================")
	for _, w := range wires {
		hash := fingerprintWire(w)
		if !cache.IsValid("filetype", w.Name, hash) {
			specs, err := filetypes.Compile([]filetypes.Wire{w})
			if err != nil {
				return fmt.Errorf("list: compile %q: %w", w.Name, err)
			}
			_ = cache.Set("filetype", w.Name, registry.PluginMeta{
				Name:        w.Name,
				Description: describeSpecs(specs),
				Active:      true,
				FileHash:    hash,
			})
		}
		meta, _ := cache.Get("filetype", w.Name)
		fmt.Printf("  - %-10s %s\n", w.Name, meta.Description)
	}
	_ = cache.Save()

	return nil
}

func fingerprintWire(w filetypes.Wire) string {
	return fmt.Sprintf("%v", w)
}

func describeSpecs(specs []types.FileTypeSpec) string {
	if len(specs) == 0 {
		return "(no header patterns)"
	}
	s := specs[0]
	footer := "header-only"
	if s.HasFooter {
		footer = "header/footer"
	}
	return fmt.Sprintf("validator=%s %s max_size=%d", s.ValidatorName, footer, s.MaxSize)
}
