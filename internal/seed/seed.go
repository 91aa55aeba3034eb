// Package seed loads YAML seed bundles - schema documents, machine
// definitions, actor definitions and plain data - and applies them through
// the operation router. The router's seed operation handles ordering
// (schemas first) and human-readable reference transformation; this package
// only parses files into documents.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/pkg/runtime"
)

// Bundle is an ordered set of seed documents parsed from one or more YAML
// files.
type Bundle struct {
	Documents []map[string]any
}

// LoadBundle parses a YAML file into a bundle. The file may hold a single
// mapping or a multi-document stream separated by "---"; each document must
// be a mapping.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	defer f.Close()

	bundle := &Bundle{}
	decoder := yaml.NewDecoder(f)
	for i := 0; ; i++ {
		var doc map[string]any
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse %s (document %d): %w", path, i, err)
		}
		if doc == nil {
			// An empty document between separators.
			continue
		}
		bundle.Documents = append(bundle.Documents, doc)
	}

	if len(bundle.Documents) == 0 {
		return nil, fmt.Errorf("seed file %s contains no documents", path)
	}
	return bundle, nil
}

// Apply seeds the bundle's documents through the router.
func (b *Bundle) Apply(ctx context.Context, router *runtime.Router) (*runtime.SeedResult, error) {
	result, err := router.Execute(ctx, runtime.Operation{
		Op:        runtime.OpSeed,
		Documents: b.Documents,
	})
	if err != nil {
		return nil, err
	}
	return result.(*runtime.SeedResult), nil
}

// LoadAndApply loads every named file and seeds them as one bundle, so
// documents in later files may reference schemas from earlier ones.
func LoadAndApply(ctx context.Context, router *runtime.Router, paths ...string) (*runtime.SeedResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no seed files given")
	}

	combined := &Bundle{}
	for _, path := range paths {
		bundle, err := LoadBundle(path)
		if err != nil {
			return nil, err
		}
		combined.Documents = append(combined.Documents, bundle.Documents...)
	}
	return combined.Apply(ctx, router)
}
