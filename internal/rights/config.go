// Package rights implements capability-based authorization: a static
// per-entity-type declaration of named rights, persisted per-instance grant
// rows, and the check/grant/revoke engine every workflow reuses instead of
// hand-rolling ownership checks.
package rights

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tixgate/actionset/model"
)

// Config wraps the static rights declaration with the precomputed transitive
// count_as closure. Built once at startup; a cycle in count_as is a fatal
// configuration error, never a per-request one.
type Config struct {
	decl    model.RightsConfig
	closure map[string]map[string][]string // entityType -> right -> implied rights
}

// Load reads a rights declaration from a YAML file and builds the closure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rights: reading declaration file %s: %w", path, err)
	}

	var decl model.RightsConfig
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("rights: parsing declaration file %s: %w", path, err)
	}

	return New(decl)
}

// New builds a Config from an in-memory declaration.
func New(decl model.RightsConfig) (*Config, error) {
	c := &Config{
		decl:    decl,
		closure: make(map[string]map[string][]string, len(decl)),
	}

	for entityType, defs := range decl {
		c.closure[entityType] = make(map[string][]string, len(defs))
		for right := range defs {
			implied, err := expand(entityType, right, defs)
			if err != nil {
				return nil, err
			}
			c.closure[entityType][right] = implied
		}
	}

	return c, nil
}

// expand walks the count_as graph from one right and returns every
// transitively implied right, excluding the right itself. A revisited node
// on the current path is a cycle.
func expand(entityType, root string, defs map[string]model.RightDef) ([]string, error) {
	var implied []string
	seen := map[string]bool{root: true}
	onPath := map[string]bool{root: true}

	var visit func(right string) error
	visit = func(right string) error {
		def, ok := defs[right]
		if !ok {
			return fmt.Errorf("rights: %s.%s: count_as references undeclared right %q", entityType, root, right)
		}
		for _, next := range def.CountAs {
			if onPath[next] {
				return fmt.Errorf("rights: %s: count_as cycle through %q and %q", entityType, root, next)
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			implied = append(implied, next)

			onPath[next] = true
			if err := visit(next); err != nil {
				return err
			}
			delete(onPath, next)
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}

	sort.Strings(implied)
	return implied, nil
}

// Get returns the declaration of a right on an entity type.
func (c *Config) Get(entityType, right string) (model.RightDef, bool) {
	return c.decl.Get(entityType, right)
}

// Rights returns all declared right names for an entity type.
func (c *Config) Rights(entityType string) map[string]model.RightDef {
	return c.decl[entityType]
}

// Closure returns the transitively implied rights of holding the named
// right, excluding the right itself.
func (c *Config) Closure(entityType, right string) []string {
	types, ok := c.closure[entityType]
	if !ok {
		return nil
	}
	return types[right]
}

// Implies reports whether holding held grants want, either directly or
// through the count_as closure.
func (c *Config) Implies(entityType, held, want string) bool {
	if held == want {
		return true
	}
	for _, implied := range c.Closure(entityType, held) {
		if implied == want {
			return true
		}
	}
	return false
}

// HasPublic reports whether any right declared for the entity type is
// public.
func (c *Config) HasPublic(entityType string) bool {
	for _, def := range c.decl[entityType] {
		if def.Public {
			return true
		}
	}
	return false
}
