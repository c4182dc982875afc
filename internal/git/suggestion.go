package git

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/pbaumgart/loupe/internal/review"
)

// PreviewSuggestion computes the patches a suggestion would produce
// without touching the working tree. Files whose edits leave the
// content unchanged are omitted.
func (r *Repository) PreviewSuggestion(s review.Suggestion) ([]review.ApplyPreview, error) {
	changes, err := r.suggestionChanges(s)
	if err != nil {
		return nil, err
	}
	previews := make([]review.ApplyPreview, 0, len(changes))
	for _, ch := range changes {
		if ch.original == ch.updated {
			continue
		}
		patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        textLines(ch.original),
			B:        textLines(ch.updated),
			FromFile: "a/" + ch.path,
			ToFile:   "b/" + ch.path,
			Context:  r.cfg.ContextLines,
		})
		if err != nil {
			return nil, review.WrapError(review.KindInternal, err, fmt.Sprintf("diff %s: %v", ch.path, err))
		}
		previews = append(previews, review.ApplyPreview{Path: ch.path, Patch: patch})
	}
	return previews, nil
}

// ApplySuggestion writes a suggestion's edits to the working tree and
// stages the updated paths in the index. All edits are validated
// against the current file contents before the first write, so an
// invalid suggestion leaves the tree untouched.
func (r *Repository) ApplySuggestion(s review.Suggestion) error {
	changes, err := r.suggestionChanges(s)
	if err != nil {
		return err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return gitError("open worktree", err)
	}
	for _, ch := range changes {
		if ch.original == ch.updated {
			continue
		}
		target := filepath.Join(r.root, ch.path)
		if err := os.WriteFile(target, []byte(ch.updated), 0o644); err != nil {
			return review.WrapError(review.KindIO, err, fmt.Sprintf("write %s: %v", ch.path, err))
		}
		if _, err := wt.Add(ch.path); err != nil {
			return gitError(fmt.Sprintf("stage %s", ch.path), err)
		}
	}
	return nil
}

// suggestionChange is one file's content before and after the edits.
type suggestionChange struct {
	path     string
	original string
	updated  string
}

func (r *Repository) suggestionChanges(s review.Suggestion) ([]suggestionChange, error) {
	grouped := make(map[string][]review.TextEdit)
	for _, edit := range s.Edits {
		path := edit.Location.Path
		grouped[path] = append(grouped[path], edit)
	}
	paths := make([]string, 0, len(grouped))
	for path := range grouped {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]suggestionChange, 0, len(paths))
	for _, path := range paths {
		change, err := r.suggestionChange(path, grouped[path])
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (r *Repository) suggestionChange(path string, edits []review.TextEdit) (suggestionChange, error) {
	abs, err := suggestionPath(r.root, path)
	if err != nil {
		return suggestionChange{}, err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return suggestionChange{}, review.Errorf(review.KindIO, "suggestion references missing file: %s", path)
		}
		return suggestionChange{}, review.WrapError(review.KindIO, err, fmt.Sprintf("read %s: %v", path, err))
	}
	original := string(raw)
	offsets := newLineOffsets(original)

	type span struct {
		start, end  int
		replacement string
	}
	spans := make([]span, 0, len(edits))
	for _, edit := range edits {
		start, end, err := offsets.span(edit.Location)
		if err != nil {
			return suggestionChange{}, err
		}
		spans = append(spans, span{start: start, end: end, replacement: edit.Replacement})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i-1].end > spans[i].start {
			return suggestionChange{}, review.Errorf(review.KindInternal, "suggestion edits overlap in %s", path)
		}
	}

	updated := original
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		updated = updated[:sp.start] + sp.replacement + updated[sp.end:]
	}
	return suggestionChange{path: path, original: original, updated: updated}, nil
}

// suggestionPath resolves a suggestion's relative path under root,
// rejecting absolute paths and parent traversal.
func suggestionPath(root, path string) (string, error) {
	if path == "" {
		return "", review.NewError(review.KindInternal, "suggestion path is empty")
	}
	if filepath.IsAbs(path) {
		return "", review.Errorf(review.KindInternal, "suggestion path must be relative: %s", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", review.Errorf(review.KindInternal, "suggestion path must not contain parent segments: %s", path)
		}
	}
	return filepath.Join(root, path), nil
}

// lineOffsets translates 1-based line/column positions into byte
// offsets. Columns count runes, matching how editors address them.
type lineOffsets struct {
	text   string
	starts []int
}

func newLineOffsets(text string) *lineOffsets {
	starts := []int{0}
	for i, ch := range text {
		if ch == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineOffsets{text: text, starts: starts}
}

func (lo *lineOffsets) span(loc review.FileRange) (int, int, error) {
	if loc.Side != review.SideHead {
		return 0, 0, review.Errorf(review.KindInternal, "suggestion edits for %s must target the diff head, found %s", loc.Path, loc.Side)
	}
	start, err := lo.offset(loc.Path, loc.Range.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := lo.offset(loc.Path, loc.Range.End)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, review.Errorf(review.KindInternal, "suggestion range is invalid in %s (start %d > end %d)", loc.Path, start, end)
	}
	return start, end, nil
}

func (lo *lineOffsets) offset(path string, pos review.Position) (int, error) {
	if pos.Line < 1 {
		return 0, review.Errorf(review.KindInternal, "line %d is out of bounds for %s", pos.Line, path)
	}
	index := pos.Line - 1
	if index > len(lo.starts) {
		return 0, review.Errorf(review.KindInternal, "line %d is out of bounds for %s", pos.Line, path)
	}
	column := pos.Column
	if column < 1 {
		column = 1
	}
	// One past the last line addresses the end of the document, but only
	// at column 1.
	if index == len(lo.starts) {
		if column == 1 {
			return len(lo.text), nil
		}
		return 0, review.Errorf(review.KindInternal, "column %d on line %d is out of bounds for %s", column, pos.Line, path)
	}

	lineStart := lo.starts[index]
	lineEnd := len(lo.text)
	if index+1 < len(lo.starts) {
		lineEnd = lo.starts[index+1]
	}
	if column == 1 {
		return lineStart, nil
	}
	current := 1
	for offset := range lo.text[lineStart:lineEnd] {
		if current == column {
			return lineStart + offset, nil
		}
		current++
	}
	if current == column {
		return lineEnd, nil
	}
	return 0, review.Errorf(review.KindInternal, "column %d on line %d is out of bounds for %s", column, pos.Line, path)
}

// textLines splits text into newline-terminated lines for difflib,
// normalizing a missing trailing newline.
func textLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
