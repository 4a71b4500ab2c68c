package render

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Template block names of the raceway vocabulary.
const (
	BlockRaceway     = "Raceway"
	BlockRacewayHL   = "RacewayHL"
	BlockJump        = "Jump"
	BlockDrop        = "Drop"
	BlockNode        = "Node"
	BlockRwNode      = "RwNode"
	BlockEquipNode   = "EquipNode"
	BlockEquipNodeHL = "EquipNodeHL"
)

const (
	LayerRaceway      = "Raceway"
	LayerRacewayHL    = "RacewayHL"
	LayerRacewayTag   = "RacewayTag"
	LayerRacewayTagHL = "RacewayTagHL"
	LayerDrop         = "Drop"
	LayerDropTag      = "DropTag"
	LayerEquipNode    = "EquipNode"
	LayerEquipNodeHL  = "EquipNodeHL"
	LayerEquipTag     = "EquipTag"
	LayerRwNode       = "RwNode"
	LayerRwNodeTag    = "RwNodeTag"
)

// Category groups segment templates that are drawn alike.
type Category struct {
	Name         string
	NodeTemplate string
	SegmentLayer string
	TagLayer     string
	NodeLayer    string
	NodeTagLayer string

	// Segments holds the template names drawn in this category.
	Segments mapset.Set[string]

	// SpawnNodes places a node block at every node the segments touch.
	SpawnNodes bool

	// Highlight overrides the layers of individual templates.
	Highlight map[string]LayerPair
}

type LayerPair struct {
	Block string
	Tag   string
}

// segmentTemplate reports the category's spelling of segType. Template names
// match case-insensitively, as block names do in the drawing.
func (c Category) segmentTemplate(segType string) (string, bool) {
	if c.Segments == nil {
		return "", false
	}
	if c.Segments.Contains(segType) {
		return segType, true
	}
	var found string
	c.Segments.Each(func(name string) bool {
		if strings.EqualFold(name, segType) {
			found = name
			return true
		}
		return false
	})
	return found, found != ""
}

func (c Category) highlight(template string) (LayerPair, bool) {
	if hl, ok := c.Highlight[template]; ok {
		return hl, true
	}
	for name, hl := range c.Highlight {
		if strings.EqualFold(name, template) {
			return hl, true
		}
	}
	return LayerPair{}, false
}

func (c Category) segmentLayers(template string) (block, tag string) {
	if hl, ok := c.highlight(template); ok {
		return hl.Block, hl.Tag
	}
	return c.SegmentLayer, c.TagLayer
}

func (c Category) nodeLayers(template string) (block, tag string) {
	if hl, ok := c.highlight(template); ok {
		return hl.Block, hl.Tag
	}
	return c.NodeLayer, c.NodeTagLayer
}

// DefaultCategories is trunk, jump and drop.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:         "trunk",
			Segments:     mapset.NewSet(BlockRaceway, BlockRacewayHL),
			NodeTemplate: BlockRwNode,
			SegmentLayer: LayerRaceway,
			TagLayer:     LayerRacewayTag,
			NodeLayer:    LayerRwNode,
			NodeTagLayer: LayerRwNodeTag,
			SpawnNodes:   true,
			Highlight: map[string]LayerPair{
				BlockRacewayHL: {Block: LayerRacewayHL, Tag: LayerRacewayTagHL},
			},
		},
		{
			Name:         "jump",
			Segments:     mapset.NewSet(BlockJump),
			SegmentLayer: LayerRaceway,
			TagLayer:     LayerRacewayTag,
		},
		{
			Name:         "drop",
			Segments:     mapset.NewSet(BlockDrop),
			NodeTemplate: BlockEquipNode,
			SegmentLayer: LayerDrop,
			TagLayer:     LayerDropTag,
			NodeLayer:    LayerEquipNode,
			NodeTagLayer: LayerEquipTag,
			SpawnNodes:   true,
			Highlight: map[string]LayerPair{
				BlockEquipNodeHL: {Block: LayerEquipNodeHL, Tag: LayerEquipTag},
			},
		},
	}
}
