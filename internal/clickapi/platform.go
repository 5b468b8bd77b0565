package clickapi

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Architecture returns the device architecture in the catalog's naming.
func Architecture() string {
	return ArchitectureFor(runtime.GOARCH)
}

// ArchitectureFor maps a GOARCH value to the catalog's naming.
func ArchitectureFor(goarch string) string {
	switch goarch {
	case "arm":
		return "armhf"
	case "386":
		return "i386"
	case "ppc64le":
		return "ppc64el"
	default:
		return goarch
	}
}

// Frameworks lists the frameworks installed in dir, one per *.framework file.
// A missing directory yields no frameworks.
func Frameworks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read frameworks dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".framework" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".framework"))
	}
	sort.Strings(names)
	return names, nil
}
