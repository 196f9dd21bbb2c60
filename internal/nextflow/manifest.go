// Package nextflow reads pipeline metadata from nextflow.config manifests and
// nextflow_schema.json parameter schemas.
package nextflow

import (
	"regexp"
	"strings"
)

// Files read from a pipeline repository.
const (
	ConfigFile = "nextflow.config"
	SchemaFile = "nextflow_schema.json"
)

// Placeholders shown when a manifest omits a field.
const (
	NoDescription = "No description available"
	NoVersion     = "N/A"
)

// Manifest holds the manifest fields the console displays.
type Manifest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	NextflowVersion string `json:"nextflowVersion"`
	Version         string `json:"version"`
}

var (
	dottedRe     = regexp.MustCompile(`^\s*manifest\.(\w+)\s*=\s*['"](.*)['"]\s*$`)
	scopeOpenRe  = regexp.MustCompile(`^\s*manifest\s*\{\s*$`)
	scopedAssign = regexp.MustCompile(`^\s*(\w+)\s*=\s*['"](.*)['"]\s*$`)
)

// ParseManifest extracts manifest fields from nextflow.config content. Both
// the dotted form (manifest.description = '...') and the scoped block form
// are recognised; only direct children of the manifest block are read.
func ParseManifest(content string) Manifest {
	var m Manifest
	inScope := false
	depth := 0
	for _, line := range strings.Split(content, "\n") {
		if match := dottedRe.FindStringSubmatch(line); match != nil {
			m.set(match[1], match[2])
			continue
		}
		if !inScope && scopeOpenRe.MatchString(line) {
			inScope = true
			depth = 1
			continue
		}
		if !inScope {
			continue
		}
		if depth == 1 {
			if match := scopedAssign.FindStringSubmatch(line); match != nil {
				m.set(match[1], match[2])
			}
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth <= 0 {
			inScope = false
		}
	}
	return m
}

func (m *Manifest) set(field, value string) {
	value = strings.Trim(value, `"'`)
	switch field {
	case "name":
		m.Name = value
	case "description":
		m.Description = value
	case "nextflowVersion":
		m.NextflowVersion = value
	case "version":
		m.Version = value
	}
}

// WithPlaceholders fills missing display fields.
func (m Manifest) WithPlaceholders() Manifest {
	if m.Description == "" {
		m.Description = NoDescription
	}
	if m.NextflowVersion == "" {
		m.NextflowVersion = NoVersion
	}
	return m
}
