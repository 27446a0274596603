package schema

import (
	"strconv"
	"strings"
)

// Segment is one step of a Path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns an object-key segment.
func Key(name string) Segment { return Segment{Key: name} }

// Index returns an array-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path locates a value inside a document. The empty path is the root.
type Path []Segment

// String renders p as an RFC 6901 JSON pointer ("" for the root).
func (p Path) String() string {
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		if seg.IsIndex {
			b.WriteString(strconv.Itoa(seg.Index))
			continue
		}
		b.WriteString(pointerEscaper.Replace(seg.Key))
	}
	return b.String()
}

// Display is String with the root shown as "(root)" for messages.
func (p Path) Display() string {
	if len(p) == 0 {
		return "(root)"
	}
	return p.String()
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func (p Path) key(name string) Path {
	return append(p.clone(), Key(name))
}

func (p Path) index(i int) Path {
	return append(p.clone(), Index(i))
}

func (p Path) clone() Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return out
}
