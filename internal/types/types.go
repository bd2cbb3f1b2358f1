// Package types provides shared type definitions used across sceneforge packages.
// This package exists to break import cycles between pipeline, layout, and store.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// =============================================================================
// GEOMETRY
// =============================================================================

// Vec3 is a 3-component vector. Axis convention: +x right, +y back, +z up,
// room center at the origin, units in meters (degrees for rotations).
// On the wire a Vec3 is a fixed-order [x, y, z] array.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// MarshalJSON encodes the vector as [x, y, z].
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

// UnmarshalJSON decodes a [x, y, z] array, rejecting any other arity.
func (v *Vec3) UnmarshalJSON(data []byte) error {
	var a []float64
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("vec3 must be a [x, y, z] array: %w", err)
	}
	if len(a) != 3 {
		return fmt.Errorf("vec3 must have exactly 3 components, got %d", len(a))
	}
	v.X, v.Y, v.Z = a[0], a[1], a[2]
	return nil
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// HorizontalDistance returns the XY-plane distance to o.
func (v Vec3) HorizontalDistance(o Vec3) float64 {
	dx, dy := v.X-o.X, v.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Array returns the vector as a fixed-order [x, y, z] slice for wire formats.
func (v Vec3) Array() []float64 { return []float64{v.X, v.Y, v.Z} }

// Vec3FromArray builds a Vec3 from a wire-format [x, y, z] slice.
func Vec3FromArray(a []float64) (Vec3, error) {
	if len(a) != 3 {
		return Vec3{}, fmt.Errorf("expected 3 components, got %d", len(a))
	}
	return Vec3{a[0], a[1], a[2]}, nil
}

// NormalizeDegrees maps an angle in degrees into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// =============================================================================
// SCENE OBJECTS
// =============================================================================

// MinObjectSize is the smallest allowed extent on any axis, in meters.
const MinObjectSize = 0.01

// Pose is an object position plus Euler rotation in degrees.
type Pose struct {
	Position Vec3 `json:"pos"`
	Rotation Vec3 `json:"rot_euler"`
}

// Object is a single scene object as extracted from the user's description.
// After the extraction stage completes, objects are read-only to the rest
// of the pipeline; the layout solver works on copies.
type Object struct {
	ObjectID    string   `json:"object_id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Size        Vec3     `json:"size_m"`
	InitialPose Pose     `json:"initial_pose"`
	VisualDesc  string   `json:"visual_desc"`
	StyleHints  []string `json:"style_hints,omitempty"`
	MustExist   bool     `json:"must_exist"`
}

// Validate checks a single object for well-formedness.
func (o *Object) Validate() error {
	if o.ObjectID == "" {
		return NewError(ErrInvalidInput, "types", "object has empty object_id")
	}
	if o.Size.X < MinObjectSize || o.Size.Y < MinObjectSize || o.Size.Z < MinObjectSize {
		return NewError(ErrInvalidInput, "types",
			fmt.Sprintf("object %s: size below minimum %.2fm on some axis", o.ObjectID, MinObjectSize))
	}
	return nil
}

// NormalizeRotation maps all rotation components into [0, 360).
func (o *Object) NormalizeRotation() {
	o.InitialPose.Rotation.X = NormalizeDegrees(o.InitialPose.Rotation.X)
	o.InitialPose.Rotation.Y = NormalizeDegrees(o.InitialPose.Rotation.Y)
	o.InitialPose.Rotation.Z = NormalizeDegrees(o.InitialPose.Rotation.Z)
}

// GroundHeight returns the z coordinate of the object center when it rests
// on the floor plane.
func (o *Object) GroundHeight() float64 { return o.Size.Z / 2 }

// ObjectSet is the output of the extraction stage: a scene style plus the
// object inventory. Object IDs must be unique within a session.
type ObjectSet struct {
	SceneStyle string    `json:"scene_style"`
	Objects    []*Object `json:"objects"`
}

// Validate checks every object and rejects duplicate IDs.
func (s *ObjectSet) Validate() error {
	seen := make(map[string]bool, len(s.Objects))
	for _, obj := range s.Objects {
		if err := obj.Validate(); err != nil {
			return err
		}
		if seen[obj.ObjectID] {
			return NewError(ErrInvalidInput, "types",
				fmt.Sprintf("duplicate object_id %q", obj.ObjectID))
		}
		seen[obj.ObjectID] = true
	}
	return nil
}

// ByID returns the object with the given id, or nil.
func (s *ObjectSet) ByID(id string) *Object {
	for _, obj := range s.Objects {
		if obj.ObjectID == id {
			return obj
		}
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// RequestConstraints carries optional caps supplied with the user request.
type RequestConstraints struct {
	MaxObjects   int       `json:"max_objects,omitempty"`
	RoomSizeHint []float64 `json:"room_size_hint,omitempty"`
}

// SceneRequest is the immutable user input persisted as request.json.
type SceneRequest struct {
	Text        string              `json:"text"`
	Style       string              `json:"style,omitempty"`
	Constraints *RequestConstraints `json:"constraints,omitempty"`
}

// Validate rejects empty or malformed requests.
func (r *SceneRequest) Validate() error {
	if r.Text == "" {
		return NewError(ErrInvalidInput, "types", "scene text is empty")
	}
	if r.Constraints != nil && r.Constraints.RoomSizeHint != nil && len(r.Constraints.RoomSizeHint) != 3 {
		return NewError(ErrInvalidInput, "types", "room_size_hint must have exactly 3 components [L,W,H]")
	}
	return nil
}
