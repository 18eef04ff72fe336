// Package trajectory holds camera trajectories and the mapping between a
// clip's playback progress and progress through its original footage.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrBadRotation = errors.New("rotation must be a 3x3 matrix")

// Euler is an XYZ-order rotation in radians.
type Euler struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is one camera sample. Position and Rotation are nil where the
// reconstruction has a gap.
type Pose struct {
	Position          *r3.Vec  `json:"position,omitempty"`
	Rotation          *Euler   `json:"rotation,omitempty"`
	Timestamp         *float64 `json:"ts,omitempty"`
	ImageName         string   `json:"img_name,omitempty"`
	OriginalTimestamp *float64 `json:"original_video_ts,omitempty"`
}

// HasPose reports whether the sample carries a usable camera pose.
func (p Pose) HasPose() bool {
	return p.Position != nil && p.Rotation != nil
}

// Trajectory is an ordered sequence of poses across a clip.
type Trajectory []Pose

// FromRaw converts service arrays into a trajectory. The trajectory has one
// pose per timestamp; a nil position marks a gap. originalTs may be nil.
func FromRaw(pos [][]float64, rot [][][]float64, ts []float64, originalTs []float64) (Trajectory, error) {
	out := make(Trajectory, len(ts))
	for i := range ts {
		stamp := ts[i]
		out[i].Timestamp = &stamp
		if i < len(originalTs) {
			o := originalTs[i]
			out[i].OriginalTimestamp = &o
		}

		if i >= len(pos) || pos[i] == nil {
			continue
		}
		if len(pos[i]) != 3 {
			return nil, fmt.Errorf("pose %d: position has %d components", i, len(pos[i]))
		}
		if i >= len(rot) {
			return nil, fmt.Errorf("pose %d: missing rotation", i)
		}
		e, err := RotationMatrixToEuler(rot[i])
		if err != nil {
			return nil, fmt.Errorf("pose %d: %w", i, err)
		}
		out[i].Position = &r3.Vec{X: pos[i][0], Y: pos[i][1], Z: pos[i][2]}
		out[i].Rotation = &e
	}
	return out, nil
}

// ImageCamera is a reconstruction camera keyed by source image.
type ImageCamera struct {
	ImageName string      `json:"img_name"`
	Position  []float64   `json:"position"`
	Rotation  [][]float64 `json:"rotation"`
}

// FromImageCameras converts reconstruction cameras, which carry no
// timestamps, into a trajectory for scene exploration.
func FromImageCameras(cams []ImageCamera) (Trajectory, error) {
	out := make(Trajectory, len(cams))
	for i, c := range cams {
		out[i].ImageName = c.ImageName
		if c.Position == nil {
			continue
		}
		p, err := PoseFromRaw(c.Position, c.Rotation)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", c.ImageName, err)
		}
		out[i].Position = p.Position
		out[i].Rotation = p.Rotation
	}
	return out, nil
}

// PoseFromRaw converts a single position and rotation matrix.
func PoseFromRaw(pos []float64, rot [][]float64) (Pose, error) {
	if pos == nil {
		return Pose{}, nil
	}
	if len(pos) != 3 {
		return Pose{}, fmt.Errorf("position has %d components", len(pos))
	}
	e, err := RotationMatrixToEuler(rot)
	if err != nil {
		return Pose{}, err
	}
	return Pose{Position: &r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}, Rotation: &e}, nil
}

// flipX is a half turn about X, the camera convention of the viewer.
var flipX = mat.NewDense(3, 3, []float64{
	1, 0, 0,
	0, -1, 0,
	0, 0, -1,
})

// RotationMatrixToEuler applies m to a camera turned half a revolution about
// X and returns the resulting XYZ Euler angles. m is row-major.
func RotationMatrixToEuler(m [][]float64) (Euler, error) {
	if len(m) != 3 {
		return Euler{}, ErrBadRotation
	}
	data := make([]float64, 0, 9)
	for _, row := range m {
		if len(row) != 3 {
			return Euler{}, ErrBadRotation
		}
		data = append(data, row...)
	}

	var r mat.Dense
	r.Mul(mat.NewDense(3, 3, data), flipX)

	m11, m12, m13 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	m22, m23 := r.At(1, 1), r.At(1, 2)
	m32, m33 := r.At(2, 1), r.At(2, 2)

	var e Euler
	e.Y = math.Asin(math.Max(-1, math.Min(1, m13)))
	if math.Abs(m13) < 0.9999999 {
		e.X = math.Atan2(-m23, m33)
		e.Z = math.Atan2(-m12, m11)
	} else {
		e.X = math.Atan2(m32, m22)
		e.Z = 0
	}
	return e, nil
}

// Len returns the number of samples.
func (t Trajectory) Len() int {
	return len(t)
}

// TotalTime is the span between the first and last timestamps. ok is false
// when either is missing.
func (t Trajectory) TotalTime() (seconds float64, ok bool) {
	if len(t) == 0 {
		return 0, false
	}
	first, last := t[0].Timestamp, t[len(t)-1].Timestamp
	if first == nil || last == nil {
		return 0, false
	}
	return *last - *first, true
}

// NearestPose returns the closest sample to i that has a pose, searching
// outward. ok is false when the trajectory has no pose at all.
func (t Trajectory) NearestPose(i int) (Pose, int, bool) {
	if len(t) == 0 {
		return Pose{}, -1, false
	}
	i = clampInt(i, 0, len(t)-1)
	for d := 0; d < len(t); d++ {
		if j := i - d; j >= 0 && t[j].HasPose() {
			return t[j], j, true
		}
		if j := i + d; d > 0 && j < len(t) && t[j].HasPose() {
			return t[j], j, true
		}
	}
	return Pose{}, -1, false
}

// Clone returns an independent copy of the trajectory slice.
func (t Trajectory) Clone() Trajectory {
	out := make(Trajectory, len(t))
	copy(out, t)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
