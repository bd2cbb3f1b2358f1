package layout

import (
	"io"

	svg "github.com/ajstarks/svgo"

	"sceneforge/internal/types"
)

// floorPlanScale is the rendering scale in pixels per meter.
const floorPlanScale = 50

// FloorPlanSVG renders a top-down floor plan of a layout solution: the room
// outline plus one labeled rectangle per placed object. The plan is a debug
// artifact written alongside each solution version.
func FloorPlanSVG(w io.Writer, objects []*types.Object, sol *types.LayoutSolution, roomSize []float64) {
	if len(roomSize) != 3 {
		roomSize = []float64{10, 10, 3}
	}
	width := int(roomSize[0] * floorPlanScale)
	height := int(roomSize[1] * floorPlanScale)

	// World x right, world y back; SVG y grows downward, so y flips.
	toPxX := func(x float64) int { return int((x + roomSize[0]/2) * floorPlanScale) }
	toPxY := func(y float64) int { return int((roomSize[1]/2 - y) * floorPlanScale) }

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:#fafafa;stroke:#333;stroke-width:2")

	for _, obj := range objects {
		p, ok := sol.ObjectPlacements[obj.ObjectID]
		if !ok {
			continue
		}
		wpx := int(obj.Size.X * floorPlanScale)
		hpx := int(obj.Size.Y * floorPlanScale)
		x := toPxX(p.Position.X) - wpx/2
		y := toPxY(p.Position.Y) - hpx/2

		style := "fill:#8ecae6;stroke:#023047;stroke-width:1;fill-opacity:0.7"
		if res, ok := sol.Results[obj.ObjectID]; ok && !res.Successful {
			style = "fill:#e63946;stroke:#6a040f;stroke-width:1;fill-opacity:0.7"
		}
		canvas.Rect(x, y, wpx, hpx, style)
		canvas.Text(toPxX(p.Position.X), toPxY(p.Position.Y),
			obj.ObjectID, "font-size:10px;text-anchor:middle;fill:#1d3557")
	}
	canvas.End()
}
