// Package review defines the portable value model exchanged between the
// repository backend, the session manager, agent plugins, and the host
// presentation layer. Everything here is an immutable, serializable
// snapshot; nothing holds live repository state.
package review

import "time"

type RepositoryInfo struct {
	Root          string `json:"root"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

type WorkspaceStatus struct {
	CurrentBranch string `json:"current_branch,omitempty"`
	Dirty         bool   `json:"dirty"`
}

type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Revision identifies a single commit. A repository with no commits has
// no revisions at all; callers must treat a nil *Revision as "absent",
// not as an error.
type Revision struct {
	OID       string     `json:"oid"`
	Reference string     `json:"reference,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Author    *Signature `json:"author,omitempty"`
	Committer *Signature `json:"committer,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitzero"`
}

// RevisionRange is the pair of endpoints a diff was computed over. A nil
// Base means the diff baseline is the empty tree (e.g. the first commit
// or an unborn repository); a nil Head means the right side is the live
// working tree.
type RevisionRange struct {
	Base *Revision `json:"base,omitempty"`
	Head *Revision `json:"head,omitempty"`
}

// RepositorySnapshot bundles repository metadata, workspace status and
// the pending revision range into one consistent read.
type RepositorySnapshot struct {
	Info      RepositoryInfo  `json:"info"`
	Workspace WorkspaceStatus `json:"workspace"`
	Revisions *RevisionRange  `json:"revisions,omitempty"`
}

type FileStatus string

const (
	StatusAdded      FileStatus = "added"
	StatusDeleted    FileStatus = "deleted"
	StatusModified   FileStatus = "modified"
	StatusRenamed    FileStatus = "renamed"
	StatusCopied     FileStatus = "copied"
	StatusTypeChange FileStatus = "type_change"
)

type DiffLineKind string

const (
	LineContext  DiffLineKind = "context"
	LineAddition DiffLineKind = "addition"
	LineDeletion DiffLineKind = "deletion"
)

// Diff is a full diff for a revision range. Files are ordered and no
// two entries share the same Path.
type Diff struct {
	Range RevisionRange `json:"range"`
	Files []DiffFile    `json:"files"`
}

// DiffFile is the diff of a single file. IsBinary implies Hunks is
// empty; otherwise Stats counts exactly the addition/deletion lines
// across Hunks.
type DiffFile struct {
	Path     string     `json:"path"`
	OldPath  string     `json:"old_path,omitempty"`
	Status   FileStatus `json:"status"`
	Stats    DiffStats  `json:"stats"`
	IsBinary bool       `json:"is_binary"`
	Hunks    []DiffHunk `json:"hunks"`
}

type DiffStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

func (s DiffStats) Add(other DiffStats) DiffStats {
	return DiffStats{
		Additions: s.Additions + other.Additions,
		Deletions: s.Deletions + other.Deletions,
	}
}

type DiffHunk struct {
	Header  DiffRange  `json:"header"`
	Section string     `json:"section,omitempty"`
	Lines   []DiffLine `json:"lines"`
}

// DiffRange is the line number ranges from a hunk header
// ("@@ -baseStart,baseLines +headStart,headLines @@").
type DiffRange struct {
	BaseStart int `json:"base_start"`
	BaseLines int `json:"base_lines"`
	HeadStart int `json:"head_start"`
	HeadLines int `json:"head_lines"`
}

// DiffLine is a single line inside a hunk. BaseLine is zero for
// additions, HeadLine is zero for deletions; both are 1-based.
type DiffLine struct {
	Kind       DiffLineKind    `json:"kind"`
	Text       string          `json:"text"`
	BaseLine   int             `json:"base_line,omitempty"`
	HeadLine   int             `json:"head_line,omitempty"`
	Highlights []LineHighlight `json:"highlights,omitempty"`
}

// LineHighlight marks an intraline modification as a zero-based column
// span, start inclusive, end exclusive.
type LineHighlight struct {
	StartColumn int `json:"start_column"`
	EndColumn   int `json:"end_column"`
}

// TotalStats sums the per-file stats across the diff.
func (d *Diff) TotalStats() DiffStats {
	var total DiffStats
	for _, f := range d.Files {
		total = total.Add(f.Stats)
	}
	return total
}

// File returns the entry for path, or nil when the diff does not touch it.
func (d *Diff) File(path string) *DiffFile {
	for i := range d.Files {
		if d.Files[i].Path == path {
			return &d.Files[i]
		}
	}
	return nil
}
