package carver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// FileWriter is the minimal default types.Writer: it stitches a
// Validation's (possibly reconstructed) fragments by copying each
// [start, end) range in order into one output file named from the
// header offset: filename := base_name(header_offset) + "." + extension.
type FileWriter struct {
	dir  string
	src  *os.File
	exts map[string]string
}

// NewFileWriter returns a FileWriter that reads fragment bytes from src and
// writes carved files into dir, creating dir if it does not already exist.
// exts maps a FileTypeSpec.ID to the extension its Wire definition named;
// an unmapped ID falls back to extensionFor.
func NewFileWriter(dir string, src *os.File, exts map[string]string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewIOError(fmt.Errorf("carver: create output dir %s: %w", dir, err))
	}
	return &FileWriter{dir: dir, src: src, exts: exts}, nil
}

// WriteCandidate stitches v's fragments into a new file under the writer's
// output directory and returns its path.
func (w *FileWriter) WriteCandidate(ctx context.Context, v types.Validation, src types.CandidateSource) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext, ok := w.exts[v.Candidate.FileType]
	if !ok {
		ext = extensionFor(v.Candidate.FileType)
	}
	start, _ := v.Candidate.Span()
	name := fmt.Sprintf("%08x.%s", start, ext)
	path := filepath.Join(w.dir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", errs.NewIOError(fmt.Errorf("carver: create output file %s: %w", path, err))
	}
	defer out.Close()

	fragments := v.Fragments
	if len(fragments) == 0 {
		fragments = v.Candidate.Fragments
	}

	for _, frag := range fragments {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := src.ReadAt(ctx, frag.StartOffset, frag.Len())
		if err != nil {
			return "", err
		}
		if _, err := out.Write(data); err != nil {
			return "", errs.NewIOError(fmt.Errorf("carver: write %s: %w", path, err))
		}
	}

	return path, nil
}

// extensionFor maps a FileTypeSpec ID (possibly suffixed "#n" by
// pkg/filetypes.Compile) back to a bare extension guess. internal/carver's
// orchestrator passes the resolved extension through config instead when
// precision matters; this fallback only fires for ad-hoc Writer use.
func extensionFor(fileType string) string {
	for i, c := range fileType {
		if c == '#' {
			return fileType[:i]
		}
	}
	return fileType
}

var _ types.Writer = (*FileWriter)(nil)
