// Package tree builds and holds the confidence tree (C6, C7): the principal-variation spine plus
// selectively extended side branches, each node carrying a confidence score and a color/shape
// classification, stored in a single growable arena and referenced by index rather than pointer
// (mirroring pkg/board/zobrist.go's index-keyed tables and keeping parent/child links acyclic and
// contiguous for stable iteration order).
package tree

import "fmt"

// Shape is a node's display shape: square marks the two spine endpoints, circle is an unextended
// interior node, triangle is a node that has been extended with sibling alternatives.
type Shape int

const (
	Square Shape = iota
	Circle
	Triangle
)

func (s Shape) String() string {
	switch s {
	case Square:
		return "square"
	case Circle:
		return "circle"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// MarshalJSON renders Shape as its lowercase name for response serialization.
func (s Shape) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Color is a node's classification: green/red for circles and squares (confidence vs. baseline),
// green/red/blue for triangles (see §4.4.6).
type Color int

const (
	Green Color = iota
	Red
	Blue
)

func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

// MarshalJSON renders Color as its lowercase name for response serialization.
func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Node is one vertex of the confidence tree, as returned to callers. Fields mirror the data model
// exactly: stable id, parent reference by id, the position it represents, the move that reached
// it, its ply, its confidence, and its color/shape classification.
type Node struct {
	ID                     string   `json:"id"`
	ParentID               string   `json:"parent_id,omitempty"` // "" at the root
	PositionFingerprint    string   `json:"position_fingerprint"`
	MoveFromParentSAN      string   `json:"move_from_parent_san,omitempty"` // "" only at the root
	PlyFromRoot            int      `json:"ply_from_root"`
	ConfidencePercent      int      `json:"confidence_percent"`
	ConfidenceFrozen       int      `json:"confidence_frozen"`
	Shape                  Shape    `json:"shape"`
	Color                  Color    `json:"color"`
	HasBranches            bool     `json:"has_branches"`
	InsufficientConfidence bool     `json:"insufficient_confidence"`
	OnSpine                bool     `json:"on_spine"`
	ChildrenIDs            []string `json:"children_ids,omitempty"`
}

// isTriangle is a small readability helper used throughout the builder.
func (n Node) isTriangle() bool { return n.Shape == Triangle }
