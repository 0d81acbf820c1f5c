// Package validator is the Validator Framework: a registry.Registry[types.Validator]
// mapping FileTypeSpec.ValidatorName to a concrete implementation. Dynamic
// dispatch across validators is modeled as a sum-typed Validation result
// plus a registration map from validator name to validator, rather than
// subclassing.
package validator

import (
	"github.com/Will-Banksy/searchlight/internal/validator/generic"
	"github.com/Will-Banksy/searchlight/internal/validator/jpeg"
	"github.com/Will-Banksy/searchlight/internal/validator/png"
	"github.com/Will-Banksy/searchlight/internal/validator/zip"
	"github.com/Will-Banksy/searchlight/pkg/registry"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// NewRegistry builds the Registry used by internal/carver, pre-populated
// with the dedicated PNG/JPEG/ZIP validators plus a generic
// mimetype-sniffing fallback for any registered FileTypeSpec that names no
// dedicated validator (this: gabriel-vasile/mimetype "gets a home it
// never had").
func NewRegistry(cluster int64) *registry.Registry[types.Validator] {
	reg := registry.New[types.Validator]("validator")

	reg.Register("png", registry.FromMapNoConfig(func(_ registry.NoConfig) (types.Validator, error) {
		return png.New(cluster), nil
	}))
	reg.Register("jpeg", registry.FromMapNoConfig(func(_ registry.NoConfig) (types.Validator, error) {
		return jpeg.New(cluster), nil
	}))
	reg.Register("zip", registry.FromMapNoConfig(func(_ registry.NoConfig) (types.Validator, error) {
		return zip.New(), nil
	}))
	reg.Register("generic", registry.FromMapNoConfig(func(_ registry.NoConfig) (types.Validator, error) {
		return generic.New(), nil
	}))

	return reg
}

// Resolve looks up (or lazily constructs) the Validator registered for
// spec.ValidatorName, falling back to "generic" when a FileTypeSpec names
// no dedicated validator.
func Resolve(reg *registry.Registry[types.Validator], spec types.FileTypeSpec) (types.Validator, error) {
	name := spec.ValidatorName
	if name == "" || !reg.Has(name) {
		name = "generic"
	}
	return reg.Create(name, nil)
}
