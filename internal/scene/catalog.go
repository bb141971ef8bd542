package scene

import (
	"fmt"
	"sort"
)

// durationParam is always listed: every scene accepts a block duration.
const durationParam = "duration"

// Catalog indexes scenes discovered across the configured directories.
type Catalog struct {
	files map[string]DefinitionFile
	ids   []string
}

// CatalogEntry summarizes one scene for listing.
type CatalogEntry struct {
	ID          string
	Name        string
	Description string
	Source      string
	Inputs      []string
	Params      []string
}

// LoadCatalog discovers YAML and Go scenes under dirs. Scene ids must be
// unique across every directory.
func (l *Loader) LoadCatalog(dirs ...string) (*Catalog, error) {
	cat := &Catalog{files: map[string]DefinitionFile{}}
	for _, dir := range dirs {
		yamlDefs, err := l.LoadDefinitionDir(dir)
		if err != nil {
			return nil, err
		}
		goDefs, err := l.LoadGoDefinitionDir(dir)
		if err != nil {
			return nil, err
		}
		for _, file := range append(yamlDefs, goDefs...) {
			if err := cat.Add(file); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

// Add registers a definition file.
func (c *Catalog) Add(file DefinitionFile) error {
	id := file.Definition.ID
	if existing, ok := c.files[id]; ok {
		return fmt.Errorf("scene: duplicate scene id %s (%s and %s)", id, existing.Path, file.Path)
	}
	c.files[id] = file
	c.ids = append(c.ids, id)
	sort.Strings(c.ids)
	return nil
}

// Lookup returns the scene with the given id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	file, ok := c.files[id]
	return file.Definition, ok
}

// Len returns the number of scenes.
func (c *Catalog) Len() int { return len(c.ids) }

// Entries lists every scene sorted by id.
func (c *Catalog) Entries() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(c.ids))
	for _, id := range c.ids {
		file := c.files[id]
		def := file.Definition
		entries = append(entries, CatalogEntry{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Source:      file.Path,
			Inputs:      append([]string(nil), def.Inputs...),
			Params:      paramNames(def),
		})
	}
	return entries
}

func paramNames(def Definition) []string {
	seen := map[string]struct{}{durationParam: {}}
	for key := range def.Params {
		seen[key] = struct{}{}
	}
	for _, step := range def.Steps {
		for key := range step.Params {
			seen[key] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for key := range seen {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}
