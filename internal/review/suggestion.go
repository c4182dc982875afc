package review

// DiffSide distinguishes the two sides of a diff a position can refer
// to.
type DiffSide string

const (
	SideBase DiffSide = "base"
	SideHead DiffSide = "head"
)

// SideOfLineKind maps a line kind to the side it primarily touches.
func SideOfLineKind(kind DiffLineKind) DiffSide {
	if kind == LineAddition {
		return SideHead
	}
	return SideBase
}

// Position is a 1-based line/column location in a file. A zero Column
// means column 1.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column,omitempty"`
}

// Range is a span between two positions, start inclusive, end
// exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// FileRange locates a range on one side of the diff of a file.
type FileRange struct {
	Path  string   `json:"path"`
	Side  DiffSide `json:"side"`
	Range Range    `json:"range"`
}

// TextEdit replaces the located span with new text.
type TextEdit struct {
	Location    FileRange `json:"location"`
	Replacement string    `json:"replacement"`
}

// Suggestion is a set of text edits proposed by a reviewer or agent,
// applied together.
type Suggestion struct {
	Title string     `json:"title,omitempty"`
	Edits []TextEdit `json:"edits"`
}

// ApplyPreview is the patch a suggestion would produce for one file.
type ApplyPreview struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}
