// Package filetypes holds the FileTypeSpec wire form and the built-in PNG/JPEG/ZIP definitions
// the carving engine registers when a caller supplies none of its own.
package filetypes

import (
	"fmt"

	"github.com/Will-Banksy/searchlight/internal/patterntable"
	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// Wire is the caller-facing FileTypeSpec form from this, decoded
// straight off YAML/koanf config. '.' in a pattern string denotes a
// wildcard byte; any other byte is literal.
type Wire struct {
	Name           string   `yaml:"name" koanf:"name" validate:"required"`
	HeaderPatterns []string `yaml:"header_patterns" koanf:"header_patterns" validate:"required,min=1"`
	FooterPatterns []string `yaml:"footer_patterns,omitempty" koanf:"footer_patterns"`
	MinLength      int64    `yaml:"min_length,omitempty" koanf:"min_length" validate:"gte=0"`
	MaxLength      int64    `yaml:"max_length" koanf:"max_length" validate:"gte=0"`
	RequiresFooter bool     `yaml:"requires_footer,omitempty" koanf:"requires_footer"`
	Extension      string   `yaml:"extension" koanf:"extension" validate:"required"`
	// Validator names the registered validator (internal/validator's
	// Registry[Validator] key). Empty falls back to "generic" (the
	// mimetype-sniffing validator, this).
	Validator string `yaml:"validator,omitempty" koanf:"validator"`
}

// Compile turns wire-form FileTypeSpecs into the compiled types.FileTypeSpec
// form the Pair Matcher and Match Engine consume, parsing wildcard patterns
// and checking for fingerprint collisions up front. A Wire naming more than one header pattern
// expands into one types.FileTypeSpec per header pattern, sharing the wire
// entry's footer set, size bounds, and validator but each carrying a
// distinct registry ID so the Pair Matcher never double-processes the same
// header hits under two specs (see DESIGN.md).
func Compile(wires []Wire) ([]types.FileTypeSpec, error) {
	var specs []types.FileTypeSpec
	var allPatterns []types.Pattern

	for _, w := range wires {
		if err := validateWire(w); err != nil {
			return nil, errs.NewConfigError(err)
		}

		footer, hasFooter := types.Pattern{}, len(w.FooterPatterns) > 0
		if hasFooter {
			footer = types.ParseWildcardPattern([]byte(w.FooterPatterns[0]))
			allPatterns = append(allPatterns, footer)
		}

		validatorName := w.Validator
		if validatorName == "" {
			validatorName = "generic"
		}

		for i, hp := range w.HeaderPatterns {
			header := types.ParseWildcardPattern([]byte(hp))
			allPatterns = append(allPatterns, header)

			id := w.Name
			if len(w.HeaderPatterns) > 1 {
				id = fmt.Sprintf("%s#%d", w.Name, i)
			}

			specs = append(specs, types.FileTypeSpec{
				ID:             id,
				Header:         header,
				Footer:         footer,
				HasFooter:      hasFooter,
				RequiresFooter: hasFooter && w.RequiresFooter,
				MinSize:        w.MinLength,
				MaxSize:        w.MaxLength,
				FragmentPolicy: fragmentPolicyFor(validatorName),
				ValidatorName:  validatorName,
			})
		}
	}

	if _, err := patterntable.Build(allPatterns); err != nil {
		return nil, errs.NewConfigError(fmt.Errorf("file type patterns: %w", err))
	}

	return specs, nil
}

func validateWire(w Wire) error {
	if w.Name == "" {
		return fmt.Errorf("file type: name is required")
	}
	if len(w.HeaderPatterns) == 0 {
		return fmt.Errorf("file type %q: at least one header pattern is required", w.Name)
	}
	if w.Extension == "" {
		return fmt.Errorf("file type %q: extension is required", w.Name)
	}
	if w.MaxLength == 0 && len(w.FooterPatterns) == 0 {
		return fmt.Errorf("file type %q: must have either max_length or a footer pattern", w.Name)
	}
	return nil
}

// fragmentPolicyFor returns the bi-fragment reconstruction policy the
// dedicated validators support. Generic-validated types never reconstruct either,
// since the fallback mimetype sniff has no chunk/segment model to bridge.
func fragmentPolicyFor(validatorName string) types.FragmentPolicy {
	switch validatorName {
	case "png", "jpeg":
		return types.FragmentPolicyBiFragment
	default:
		return types.FragmentPolicyNone
	}
}

// Default returns the built-in PNG, JPEG, and ZIP wire definitions used
// when a caller's config supplies no file_types (this abstract key
// `file_types`). Sizes are generous carving defaults, not format limits.
func Default() []Wire {
	return []Wire{
		{
			Name:           "png",
			HeaderPatterns: []string{"\x89PNG\r\n\x1a\n"},
			FooterPatterns: []string{"IEND\xaeB`\x82"},
			MaxLength:      64 << 20, // 64 MiB
			RequiresFooter: false,
			Extension:      "png",
			Validator:      "png",
		},
		{
			Name:           "jpeg",
			HeaderPatterns: []string{"\xff\xd8\xff"},
			FooterPatterns: []string{"\xff\xd9"},
			MaxLength:      64 << 20,
			RequiresFooter: false,
			Extension:      "jpg",
			Validator:      "jpeg",
		},
		{
			Name:           "zip",
			HeaderPatterns: []string{"PK\x03\x04"},
			FooterPatterns: []string{"PK\x05\x06"},
			MaxLength:      256 << 20, // 256 MiB
			RequiresFooter: true,
			Extension:      "zip",
			Validator:      "zip",
		},
	}
}

// DefaultSpecs compiles Default() into types.FileTypeSpec form.
func DefaultSpecs() ([]types.FileTypeSpec, error) {
	return Compile(Default())
}
