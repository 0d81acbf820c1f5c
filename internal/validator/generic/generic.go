// Package generic is the fallback Validator for any registered
// FileTypeSpec that names no dedicated state-machine validator (this
// "gets a home it never had"): it sniffs the carved header bytes with
// gabriel-vasile/mimetype and confirms the detected family is consistent
// with the FileTypeSpec's declared extension before emitting valid-full.
// It never attempts fragment reconstruction.
package generic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

// sniffWindow bounds how many leading bytes are read for MIME detection;
// mimetype's own detector never needs more than a few KiB of header.
const sniffWindow = 3072

// Validator implements types.Validator by delegating format recognition to
// gabriel-vasile/mimetype rather than a hand-written state machine.
type Validator struct{}

// New returns a generic Validator.
func New() *Validator { return &Validator{} }

func (v *Validator) Name() string { return "generic" }

func (v *Validator) Validate(ctx context.Context, cand types.CarveCandidate, src types.CandidateSource) (types.Validation, error) {
	if len(cand.Fragments) == 0 {
		return types.Validation{}, errors.New("generic: candidate has no fragments")
	}
	start, end := cand.Span()
	length := end - start
	if length > sniffWindow {
		length = sniffWindow
	}

	head, err := src.ReadAt(ctx, start, length)
	if err != nil {
		return types.Validation{}, fmt.Errorf("generic: read header: %w", err)
	}

	mtype := mimetype.Detect(head)
	if !extensionMatches(mtype, cand.FileType) {
		return types.Validation{
			Candidate:   cand,
			Verdict:     types.VerdictInvalid,
			Reason:      fmt.Sprintf("sniffed MIME %s does not match declared type %q", mtype.String(), cand.FileType),
			ValidatedAt: time.Now(),
		}, nil
	}

	return types.Validation{
		Candidate:   cand,
		Verdict:     types.VerdictValidFull,
		Fragments:   cand.Fragments,
		ValidatedAt: time.Now(),
	}, nil
}

// extensionMatches walks mtype's detection chain (mimetype.MIME.Is covers
// both a node and its parents in the detection hierarchy) looking for an
// extension that matches the declared file type's extension, tolerating a
// leading dot and case.
func extensionMatches(mtype *mimetype.MIME, declared string) bool {
	want := "." + strings.ToLower(strings.TrimPrefix(strings.ToLower(declared), "."))
	for m := mtype; m != nil; m = m.Parent() {
		if strings.ToLower(m.Extension()) == want {
			return true
		}
	}
	return false
}

var _ types.Validator = (*Validator)(nil)
