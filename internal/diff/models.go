package diff

// LineKind classifies a line inside a hunk.
type LineKind int

const (
	Context LineKind = iota
	Added
	Removed
)

func (k LineKind) String() string {
	switch k {
	case Context:
		return "context"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Line is a single hunk line. TargetLine is the line number in the file after
// the change is applied; it is zero for removed lines.
type Line struct {
	Kind       LineKind
	TargetLine int
	Text       string
}

// Hunk is one "@@ -a,b +c,d @@" block.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Section  string
	Lines    []Line
}

// FileDiff holds the hunks for one file in a diff.
type FileDiff struct {
	// Path is the target path with the "b/" prefix removed. Deleted files
	// fall back to the source path.
	Path      string
	OldPath   string
	Hunks     []Hunk
	IsNew     bool
	IsDeleted bool
	IsBinary  bool
}

// AddedLines returns the added lines of every hunk in order.
func (f FileDiff) AddedLines() []Line {
	var out []Line
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Kind == Added {
				out = append(out, l)
			}
		}
	}
	return out
}
