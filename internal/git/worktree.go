package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/pbaumgart/loupe/internal/review"
)

// localChange is one changed path in the working tree relative to the
// baseline tree. from is nil for additions, to is nil for deletions;
// after rename pairing oldPath carries the source path.
type localChange struct {
	path       string
	oldPath    string
	from       *object.File
	to         *object.File
	similarity int
}

// worktreeDiff diffs baseTree (which may be nil for an unborn
// repository) against the live working tree and builds the portable
// model from the rendered unified text.
func (r *Repository) worktreeDiff(ctx context.Context, baseTree *object.Tree, rng review.RevisionRange) (*review.Diff, error) {
	changes, err := r.collectWorktreeChanges(baseTree)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, review.WrapError(review.KindInternal, err, "diff canceled")
	}
	r.pairRenames(changes)
	text, err := renderChanges(changes, r.cfg.ContextLines)
	if err != nil {
		return nil, err
	}
	diff, err := buildDiff(rng, text)
	if err != nil {
		return nil, err
	}
	applyChangeBinaryStats(diff, changes)
	detectWorktreeCopies(diff, baseTree, changes)
	return diff, nil
}

func (r *Repository) collectWorktreeChanges(baseTree *object.Tree) ([]*localChange, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, gitError("open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, gitError("read status", err)
	}
	var paths []string
	for path, st := range status {
		if st.Staging == gitlib.Unmodified && st.Worktree == gitlib.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]*localChange, 0, len(paths))
	for _, path := range paths {
		from, err := fileFromTree(baseTree, path)
		if err != nil {
			return nil, err
		}
		to, err := fileFromDisk(r.root, path)
		if err != nil {
			return nil, err
		}
		if from == nil && to == nil {
			continue
		}
		changes = append(changes, &localChange{path: path, from: from, to: to})
	}
	return changes, nil
}

// pairRenames merges deleted+added pairs whose content similarity meets
// the configured rename score into single rename entries, mirroring the
// backend's tree-level rename detection for working-tree diffs.
func (r *Repository) pairRenames(changes []*localChange) {
	var deletions []*localChange
	for _, ch := range changes {
		if ch.from != nil && ch.to == nil {
			deletions = append(deletions, ch)
		}
	}
	if len(deletions) == 0 {
		return
	}
	for _, added := range changes {
		if added.from != nil || added.to == nil {
			continue
		}
		for _, deleted := range deletions {
			if deleted.to != nil || deleted.path == "" {
				continue
			}
			score := contentSimilarity(deleted.from, added.to)
			if score < r.cfg.RenameScore {
				continue
			}
			added.oldPath = deleted.path
			added.from = deleted.from
			added.similarity = score
			deleted.path = "" // consumed; dropped at render time
			break
		}
	}
}

// contentSimilarity scores two files 0-100. Identical blob hashes score
// 100 without reading content; binary files never pair.
func contentSimilarity(from, to *object.File) int {
	if from.Hash == to.Hash {
		return 100
	}
	if bin, err := from.IsBinary(); err != nil || bin {
		return 0
	}
	if bin, err := to.IsBinary(); err != nil || bin {
		return 0
	}
	fromLines, err := fileLines(from)
	if err != nil {
		return 0
	}
	toLines, err := fileLines(to)
	if err != nil {
		return 0
	}
	ratio := difflib.NewMatcher(fromLines, toLines).Ratio()
	return int(ratio * 100)
}

// renderChanges encodes local changes as git-style unified diff text:
// one "diff --git" block per file with mode/rename/binary headers, the
// body produced by difflib.
func renderChanges(changes []*localChange, contextLines int) (string, error) {
	var b strings.Builder
	for _, ch := range changes {
		if ch.path == "" {
			continue
		}
		oldName := ch.oldPath
		if oldName == "" {
			oldName = ch.path
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", oldName, ch.path)
		if ch.oldPath != "" {
			fmt.Fprintf(&b, "similarity index %d%%\n", ch.similarity)
			fmt.Fprintf(&b, "rename from %s\n", ch.oldPath)
			fmt.Fprintf(&b, "rename to %s\n", ch.path)
		}
		switch {
		case ch.from == nil:
			fmt.Fprintf(&b, "new file mode %06o\n", uint32(ch.to.Mode))
		case ch.to == nil:
			fmt.Fprintf(&b, "deleted file mode %06o\n", uint32(ch.from.Mode))
		case ch.from.Mode != ch.to.Mode:
			fmt.Fprintf(&b, "old mode %06o\n", uint32(ch.from.Mode))
			fmt.Fprintf(&b, "new mode %06o\n", uint32(ch.to.Mode))
		}

		isBinary, err := binaryChange(ch)
		if err != nil {
			return "", err
		}
		if isBinary {
			fmt.Fprintf(&b, "Binary files %s and %s differ\n", diffName("a", oldName, ch.from != nil), diffName("b", ch.path, ch.to != nil))
			continue
		}

		fromLines, err := fileLines(ch.from)
		if err != nil {
			return "", err
		}
		toLines, err := fileLines(ch.to)
		if err != nil {
			return "", err
		}
		body, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        fromLines,
			B:        toLines,
			FromFile: diffName("a", oldName, ch.from != nil),
			ToFile:   diffName("b", ch.path, ch.to != nil),
			Context:  contextLines,
		})
		if err != nil {
			return "", review.WrapError(review.KindInternal, err, fmt.Sprintf("diff %s: %v", ch.path, err))
		}
		b.WriteString(body)
		if body != "" && !strings.HasSuffix(body, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func diffName(prefix, path string, present bool) string {
	if !present {
		return "/dev/null"
	}
	return prefix + "/" + path
}

func binaryChange(ch *localChange) (bool, error) {
	for _, f := range []*object.File{ch.from, ch.to} {
		if f == nil {
			continue
		}
		bin, err := f.IsBinary()
		if err != nil {
			return false, gitError("inspect blob", err)
		}
		if bin {
			return true, nil
		}
	}
	return false, nil
}

func applyChangeBinaryStats(d *review.Diff, changes []*localChange) {
	byPath := make(map[string]*localChange, len(changes))
	for _, ch := range changes {
		if ch.path != "" {
			byPath[ch.path] = ch
		}
	}
	for i := range d.Files {
		f := &d.Files[i]
		if !f.IsBinary {
			continue
		}
		ch, ok := byPath[f.Path]
		if !ok {
			continue
		}
		var oldSize, newSize int64
		if ch.from != nil {
			oldSize = ch.from.Size
		}
		if ch.to != nil {
			newSize = ch.to.Size
		}
		f.Stats = byteDeltaStats(oldSize, newSize)
	}
}

// detectWorktreeCopies upgrades added files to copied when the on-disk
// content matches an unmodified baseline file.
func detectWorktreeCopies(d *review.Diff, baseTree *object.Tree, changes []*localChange) {
	if baseTree == nil {
		return
	}
	sources := unchangedBlobSources(d, baseTree)
	if len(sources) == 0 {
		return
	}
	byPath := make(map[string]*localChange, len(changes))
	for _, ch := range changes {
		if ch.path != "" {
			byPath[ch.path] = ch
		}
	}
	for i := range d.Files {
		f := &d.Files[i]
		if f.Status != review.StatusAdded {
			continue
		}
		ch, ok := byPath[f.Path]
		if !ok || ch.to == nil {
			continue
		}
		if source, ok := sources[ch.to.Hash]; ok {
			f.Status = review.StatusCopied
			f.OldPath = source
		}
	}
}

func fileFromTree(tree *object.Tree, path string) (*object.File, error) {
	if tree == nil {
		return nil, nil
	}
	f, err := tree.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, gitError("read tree entry", err)
	}
	return f, nil
}

// fileFromDisk wraps working-tree content as an in-memory blob so disk
// and tree files share one shape. Symlinks become symlink-mode blobs
// holding the link target.
func fileFromDisk(root, path string) (*object.File, error) {
	if root == "" {
		return nil, review.NewError(review.KindInternal, "repository root not set")
	}
	fullPath := filepath.Join(root, path)
	info, err := os.Lstat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, review.WrapError(review.KindIO, err, fmt.Sprintf("stat %s: %v", fullPath, err))
	}

	var data []byte
	mode := filemode.Regular
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(fullPath)
		if err != nil {
			return nil, review.WrapError(review.KindIO, err, fmt.Sprintf("readlink %s: %v", fullPath, err))
		}
		data = []byte(target)
		mode = filemode.Symlink
	} else {
		if info.IsDir() {
			return nil, nil
		}
		data, err = os.ReadFile(fullPath)
		if err != nil {
			return nil, review.WrapError(review.KindIO, err, fmt.Sprintf("read %s: %v", fullPath, err))
		}
		if m, err := filemode.NewFromOSFileMode(info.Mode()); err == nil {
			mode = m
		}
	}

	mem := &plumbing.MemoryObject{}
	mem.SetType(plumbing.BlobObject)
	if _, err := mem.Write(data); err != nil {
		return nil, review.WrapError(review.KindInternal, err, fmt.Sprintf("buffer %s: %v", path, err))
	}
	blob, err := object.DecodeBlob(mem)
	if err != nil {
		return nil, gitError("decode blob", err)
	}
	return object.NewFile(path, mode, blob), nil
}

// fileLines splits file content into newline-terminated lines for
// difflib. A missing trailing newline is normalized; absent files have
// no lines.
func fileLines(f *object.File) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, gitError("read blob", err)
	}
	return textLines(content), nil
}
