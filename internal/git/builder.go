package git

import (
	"fmt"
	"os"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/pbaumgart/loupe/internal/highlight"
	"github.com/pbaumgart/loupe/internal/review"
)

// buildDiff parses git-style unified diff text into the portable model.
// Both the tree and working-tree pipelines funnel through here so file
// classification and line accounting stay identical.
func buildDiff(rng review.RevisionRange, text string) (*review.Diff, error) {
	diff := &review.Diff{Range: rng}
	if strings.TrimSpace(text) == "" {
		return diff, nil
	}

	files, _, err := gitdiff.Parse(strings.NewReader(text))
	if err != nil {
		return nil, review.WrapError(review.KindInternal, err, fmt.Sprintf("parse diff: %v", err))
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		df := convertFile(f)
		if seen[df.Path] {
			return nil, review.NewError(review.KindInternal, fmt.Sprintf("duplicate diff entry for %s", df.Path))
		}
		seen[df.Path] = true
		diff.Files = append(diff.Files, df)
	}
	return diff, nil
}

func convertFile(f *gitdiff.File) review.DiffFile {
	df := review.DiffFile{
		Path:     f.NewName,
		IsBinary: f.IsBinary,
		Status:   classifyFile(f),
	}
	if df.Path == "" {
		df.Path = f.OldName
	}
	switch df.Status {
	case review.StatusRenamed, review.StatusCopied:
		df.OldPath = f.OldName
	}
	if f.IsBinary {
		return df
	}
	for _, frag := range f.TextFragments {
		hunk := convertFragment(frag)
		df.Stats = df.Stats.Add(hunk.stats)
		df.Hunks = append(df.Hunks, hunk.DiffHunk)
	}
	return df
}

func classifyFile(f *gitdiff.File) review.FileStatus {
	switch {
	case f.IsRename:
		return review.StatusRenamed
	case f.IsCopy:
		return review.StatusCopied
	case f.IsNew:
		return review.StatusAdded
	case f.IsDelete:
		return review.StatusDeleted
	case modeKindChanged(f.OldMode, f.NewMode):
		return review.StatusTypeChange
	default:
		return review.StatusModified
	}
}

// modeKindChanged reports whether the entry flipped between a regular
// file and a symlink. Permission-only changes stay "modified".
func modeKindChanged(oldMode, newMode os.FileMode) bool {
	if oldMode == 0 || newMode == 0 {
		return false
	}
	return isSymlinkMode(oldMode) != isSymlinkMode(newMode)
}

func isSymlinkMode(m os.FileMode) bool {
	return m&os.ModeSymlink != 0 || uint32(m)&0o170000 == 0o120000
}

type convertedHunk struct {
	review.DiffHunk
	stats review.DiffStats
}

func convertFragment(frag *gitdiff.TextFragment) convertedHunk {
	hunk := convertedHunk{
		DiffHunk: review.DiffHunk{
			Header: review.DiffRange{
				BaseStart: int(frag.OldPosition),
				BaseLines: int(frag.OldLines),
				HeadStart: int(frag.NewPosition),
				HeadLines: int(frag.NewLines),
			},
			Section: frag.Comment,
		},
	}

	baseLine := int(frag.OldPosition)
	headLine := int(frag.NewPosition)
	for _, line := range frag.Lines {
		dl := review.DiffLine{Text: strings.TrimSuffix(line.Line, "\n")}
		switch line.Op {
		case gitdiff.OpContext:
			dl.Kind = review.LineContext
			dl.BaseLine = baseLine
			dl.HeadLine = headLine
			baseLine++
			headLine++
		case gitdiff.OpDelete:
			dl.Kind = review.LineDeletion
			dl.BaseLine = baseLine
			baseLine++
			hunk.stats.Deletions++
		case gitdiff.OpAdd:
			dl.Kind = review.LineAddition
			dl.HeadLine = headLine
			headLine++
			hunk.stats.Additions++
		}
		hunk.Lines = append(hunk.Lines, dl)
	}
	highlight.PairLines(hunk.Lines)
	return hunk
}
