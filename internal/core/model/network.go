package model

import (
	"errors"
	"fmt"
)

var ErrInvalidNetwork = errors.New("invalid network")

type Node struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Tag      string  `json:"tag"`
	NodeType string  `json:"nodeType,omitempty"`
}

func (n Node) Point() Point3 { return Point3{X: n.X, Y: n.Y, Z: n.Z} }

type Segment struct {
	ID       int    `json:"id"`
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	FromNode int    `json:"fromNode"`
	ToNode   int    `json:"toNode"`
}

// Network is a raceway graph: nodes connected by routed segments.
type Network struct {
	Nodes    []Node    `json:"nodes"`
	Segments []Segment `json:"segments"`
}

// Validate checks that node ids are unique and that every segment joins two
// distinct existing nodes. Errors wrap ErrInvalidNetwork.
func (n Network) Validate() error {
	seen := make(map[int]struct{}, len(n.Nodes))
	for _, nd := range n.Nodes {
		if _, dup := seen[nd.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidNetwork, nd.ID)
		}
		seen[nd.ID] = struct{}{}
	}
	segs := make(map[int]struct{}, len(n.Segments))
	for _, s := range n.Segments {
		if _, dup := segs[s.ID]; dup {
			return fmt.Errorf("%w: duplicate segment id %d", ErrInvalidNetwork, s.ID)
		}
		segs[s.ID] = struct{}{}
		if s.FromNode == s.ToNode {
			return fmt.Errorf("%w: segment %d starts and ends at node %d", ErrInvalidNetwork, s.ID, s.FromNode)
		}
		if _, ok := seen[s.FromNode]; !ok {
			return fmt.Errorf("%w: segment %d references unknown node %d", ErrInvalidNetwork, s.ID, s.FromNode)
		}
		if _, ok := seen[s.ToNode]; !ok {
			return fmt.Errorf("%w: segment %d references unknown node %d", ErrInvalidNetwork, s.ID, s.ToNode)
		}
	}
	return nil
}

// NodeIndex maps node ids to nodes.
func (n Network) NodeIndex() map[int]Node {
	idx := make(map[int]Node, len(n.Nodes))
	for _, nd := range n.Nodes {
		idx[nd.ID] = nd
	}
	return idx
}

func (n Network) NodeByID(id int) (Node, bool) {
	for _, nd := range n.Nodes {
		if nd.ID == id {
			return nd, true
		}
	}
	return Node{}, false
}
