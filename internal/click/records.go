package click

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParseMetadata decodes a click-metadata response body.
func ParseMetadata(body []byte) ([]Metadata, error) {
	var entries []Metadata
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse click metadata: %w", err)
	}
	return entries, nil
}

// BuildRecords returns one pending UpdateRecord per metadata entry whose
// remote revision is newer than the installed one. Entries for packages
// that are not installed, or that are not newer, are dropped. The result is
// sorted by package name.
func BuildRecords(installed []PackageInfo, entries []Metadata) []*UpdateRecord {
	revisions := make(map[string]int, len(installed))
	for _, pkg := range installed {
		revisions[pkg.Name] = pkg.Revision
	}

	seen := make(map[string]bool, len(entries))
	var records []*UpdateRecord
	for _, m := range entries {
		current, ok := revisions[m.Name]
		if !ok || seen[m.Name] {
			continue
		}
		if m.Revision <= current {
			continue
		}
		seen[m.Name] = true
		records = append(records, &UpdateRecord{
			PackageName:       m.Name,
			InstalledRevision: current,
			RemoteRevision:    m.Revision,
			Version:           m.Version,
			Title:             m.Title,
			DownloadURL:       m.DownloadURL,
			DownloadSHA512:    m.DownloadSHA512,
			BinarySize:        m.BinarySize,
			Changelog:         m.Changelog,
			State:             StatePending,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PackageName < records[j].PackageName
	})
	return records
}

// FilterPackages returns the packages named name, or all of them when name
// is empty.
func FilterPackages(pkgs []PackageInfo, name string) []PackageInfo {
	if name == "" {
		return pkgs
	}
	var out []PackageInfo
	for _, p := range pkgs {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}
