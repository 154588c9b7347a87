// Package registry loads the declarative per-system configuration
// documents (spec §6) into model.LibrarySystem records, resolving
// ${ENV_VAR} placeholders and secret-reference environment variables, and
// builds the adapter registry (system id -> ordered primary+fallback
// adapter list, spec §5) from them.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// document mirrors one registry YAML file's schema, spec §6.
type document struct {
	ID         string              `yaml:"id"`
	Name       string              `yaml:"name"`
	Vendor     string              `yaml:"vendor"`
	Region     string              `yaml:"region"`
	CatalogURL string              `yaml:"catalogUrl"`
	Enabled    *bool               `yaml:"enabled"`
	Branches   []branchDoc         `yaml:"branches"`
	Adapters   []adapterConfigDoc  `yaml:"adapters"`
}

type branchDoc struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Code    string `yaml:"code"`
	Address string `yaml:"address"`
	City    string `yaml:"city"`
}

type adapterConfigDoc struct {
	Protocol           string            `yaml:"protocol"`
	BaseURL            string            `yaml:"baseUrl"`
	Port               int               `yaml:"port"`
	DatabaseName       string            `yaml:"databaseName"`
	ClientKeyEnvVar    string            `yaml:"clientKeyEnvVar"`
	ClientSecretEnvVar string            `yaml:"clientSecretEnvVar"`
	TimeoutMs          int               `yaml:"timeoutMs"`
	MaxConcurrency     int               `yaml:"maxConcurrency"`
	Extra              map[string]string `yaml:"extra"`
}

// LoadResult is the outcome of loading a registry directory: the systems
// that loaded successfully, and the per-file errors for those that
// didn't (spec §6: "an unresolved reference fails loading that file;
// other files continue to load").
type LoadResult struct {
	Systems []model.LibrarySystem
	Errors  map[string]error // file path -> load error
}

// LoadDirectory reads every *.yaml/*.yml file in dir, resolving
// ${ENV_VAR} placeholders from the ambient environment via resolveEnv.
// A file whose placeholders can't all be resolved, or whose schema is
// invalid, is skipped (its error recorded); the rest still load. A file
// whose id duplicates one already loaded (ids must be unique across the
// registry, spec §3) is likewise skipped and recorded as an error
// against its own path; the first file to claim an id wins.
func LoadDirectory(dir string) (LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return LoadResult{}, apperr.Wrap(apperr.KindConfiguration, "reading registry directory", err)
	}

	result := LoadResult{Errors: map[string]error{}}
	seenBy := map[model.LibrarySystemId]string{} // system id -> path that first defined it
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		system, err := loadFile(path)
		if err != nil {
			result.Errors[path] = err
			continue
		}
		if first, dup := seenBy[system.ID]; dup {
			result.Errors[path] = fmt.Errorf("duplicate system id %q: already defined in %s", system.ID, first)
			continue
		}
		seenBy[system.ID] = path
		result.Systems = append(result.Systems, system)
	}

	sort.Slice(result.Systems, func(i, j int) bool {
		return result.Systems[i].ID < result.Systems[j].ID
	})

	return result, nil
}

func loadFile(path string) (model.LibrarySystem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.LibrarySystem{}, fmt.Errorf("reading %s: %w", path, err)
	}

	resolved, err := resolveEnv(raw)
	if err != nil {
		return model.LibrarySystem{}, fmt.Errorf("resolving ${ENV_VAR} in %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(resolved, &doc); err != nil {
		return model.LibrarySystem{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return toLibrarySystem(doc)
}

// resolveEnv replaces every ${ENV_VAR} placeholder with its value from
// the ambient environment. An unresolved (unset) variable fails the
// whole file, per spec §6.
func resolveEnv(raw []byte) ([]byte, error) {
	var firstMissing string
	out := envPlaceholder.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(name))
		if !ok {
			if firstMissing == "" {
				firstMissing = string(name)
			}
			return match
		}
		return []byte(val)
	})
	if firstMissing != "" {
		return nil, fmt.Errorf("unresolved environment variable %q", firstMissing)
	}
	return out, nil
}

func toLibrarySystem(doc document) (model.LibrarySystem, error) {
	if doc.ID == "" {
		return model.LibrarySystem{}, fmt.Errorf("missing required field: id")
	}
	if len(doc.Branches) == 0 {
		return model.LibrarySystem{}, fmt.Errorf("system %s: branches must be non-empty", doc.ID)
	}
	if len(doc.Adapters) == 0 {
		return model.LibrarySystem{}, fmt.Errorf("system %s: adapters must be non-empty", doc.ID)
	}

	enabled := true
	if doc.Enabled != nil {
		enabled = *doc.Enabled
	}

	branches := make([]model.Branch, 0, len(doc.Branches))
	seenBranch := map[string]bool{}
	for _, b := range doc.Branches {
		if b.ID == "" {
			return model.LibrarySystem{}, fmt.Errorf("system %s: branch missing id", doc.ID)
		}
		if seenBranch[b.ID] {
			return model.LibrarySystem{}, fmt.Errorf("system %s: duplicate branch id %s", doc.ID, b.ID)
		}
		seenBranch[b.ID] = true
		branches = append(branches, model.Branch{
			ID: model.BranchId(b.ID), Name: b.Name, Code: b.Code, Address: b.Address, City: b.City,
		})
	}

	adapters := make([]model.AdapterConfig, 0, len(doc.Adapters))
	for _, a := range doc.Adapters {
		if a.Protocol == "" {
			return model.LibrarySystem{}, fmt.Errorf("system %s: adapter missing protocol", doc.ID)
		}
		if !isAbsoluteURL(a.BaseURL) {
			return model.LibrarySystem{}, fmt.Errorf("system %s: adapter baseUrl must be absolute: %q", doc.ID, a.BaseURL)
		}

		cfg := model.AdapterConfig{
			Protocol:           a.Protocol,
			BaseURL:            a.BaseURL,
			Port:               a.Port,
			DatabaseName:       a.DatabaseName,
			ClientKeyEnvVar:    a.ClientKeyEnvVar,
			ClientSecretEnvVar: a.ClientSecretEnvVar,
			TimeoutMs:          a.TimeoutMs,
			MaxConcurrency:     a.MaxConcurrency,
			Extra:              a.Extra,
		}
		if a.ClientKeyEnvVar != "" {
			val, ok := os.LookupEnv(a.ClientKeyEnvVar)
			if !ok {
				return model.LibrarySystem{}, fmt.Errorf("system %s: clientKeyEnvVar %s unresolved", doc.ID, a.ClientKeyEnvVar)
			}
			cfg.ClientKey = val
		}
		if a.ClientSecretEnvVar != "" {
			val, ok := os.LookupEnv(a.ClientSecretEnvVar)
			if !ok {
				return model.LibrarySystem{}, fmt.Errorf("system %s: clientSecretEnvVar %s unresolved", doc.ID, a.ClientSecretEnvVar)
			}
			cfg.ClientSecret = val
		}
		adapters = append(adapters, cfg)
	}

	return model.LibrarySystem{
		ID:         model.LibrarySystemId(doc.ID),
		Name:       doc.Name,
		Vendor:     doc.Vendor,
		Region:     doc.Region,
		CatalogURL: doc.CatalogURL,
		Enabled:    enabled,
		Branches:   branches,
		Adapters:   adapters,
	}, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs()
}
