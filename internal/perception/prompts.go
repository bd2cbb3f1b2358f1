package perception

import (
	"fmt"
	"strings"

	"sceneforge/internal/types"
)

// objectExtractionSystem instructs the model to emit the objects.json wire
// shape directly. Sizes in meters, positions relative to room center.
const objectExtractionSystem = `You are a 3D interior scene analyst. Given a scene
description, enumerate every distinct physical object the scene needs.

Respond with ONLY a JSON object of this exact shape:
{
  "scene_style": "<overall style, e.g. modern, rustic>",
  "objects": [
    {
      "object_id": "<snake_case name + _NNN, unique, e.g. table_001>",
      "name": "<display name>",
      "category": "<furniture|lighting|decor|appliance|other>",
      "size_m": [x, y, z],
      "initial_pose": { "pos": [x, y, z], "rot_euler": [rx, ry, rz] },
      "visual_desc": "<one detailed sentence for an image generator>",
      "must_exist": true
    }
  ]
}

Rules:
- Units are meters. Room center is the origin; +x right, +y back, +z up.
- Ground objects rest on the floor: pos z equals half the object height.
- Every size axis is at least 0.01.
- Use realistic furniture dimensions.
- Rotations are Euler degrees in [0, 360).`

// constraintExtractionSystem emits a flat relation list. The ordered-runs
// rule keeps the directional subgraph acyclic by construction.
const constraintExtractionSystem = `You are a 3D layout planner. Given a scene
description and its object inventory, list the spatial relations the scene
implies.

Respond with ONLY a JSON array:
[
  {
    "type": "relative|distance|vertical|rotation",
    "relation": "left_of|right_of|in_front_of|behind|side_of|near|far|adjacent|on|above|below|face_to|parallel|perpendicular",
    "source": "<object_id>",
    "target": "<object_id>",
    "priority": "primary|secondary",
    "threshold_m": 0.0,
    "weight": 5.0,
    "is_soft": false
  }
]

Rules:
- source and target must be ids from the inventory, never equal.
- Order the list so that every object appears as a source in a contiguous
  run BEFORE it ever appears as a target. Never emit a directional relation
  whose target has not finished its run as a source.
- Omit threshold_m (or use 0) for defaults. near <= 2.0, far >= 8.0,
  adjacent <= 0.5.
- Emit at most one relation per (source, target, relation) triple.`

// BuildObjectExtractionPrompt renders the user prompt for object extraction.
func BuildObjectExtractionPrompt(text, style string, caps *types.RequestConstraints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene description:\n%s\n", text)
	if style != "" {
		fmt.Fprintf(&b, "\nRequested style: %s\n", style)
	}
	if caps != nil {
		if caps.MaxObjects > 0 {
			fmt.Fprintf(&b, "\nLimit the inventory to at most %d objects.\n", caps.MaxObjects)
		}
		if len(caps.RoomSizeHint) == 3 {
			fmt.Fprintf(&b, "\nThe room is %.1fm x %.1fm x %.1fm.\n",
				caps.RoomSizeHint[0], caps.RoomSizeHint[1], caps.RoomSizeHint[2])
		}
	}
	return b.String()
}

// BuildConstraintExtractionPrompt renders the user prompt for constraint
// extraction over a known inventory.
func BuildConstraintExtractionPrompt(text string, objects *types.ObjectSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene description:\n%s\n\nObject inventory:\n", text)
	for _, o := range objects.Objects {
		fmt.Fprintf(&b, "- %s: %s (%.2f x %.2f x %.2f m)\n",
			o.ObjectID, o.Name, o.Size.X, o.Size.Y, o.Size.Z)
	}
	return b.String()
}
