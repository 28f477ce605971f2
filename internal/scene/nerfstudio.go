package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/splat"
)

// ErrInvalidProject is returned for unreadable or inconsistent project files.
var ErrInvalidProject = errors.New("scene: invalid project")

// TransformsFile is the name of the nerfstudio camera file in a project.
const TransformsFile = "transforms.json"

// intrinsics are the per-camera fields that may appear at the top level of
// transforms.json or on each frame.
type intrinsics struct {
	FlX float64 `json:"fl_x"`
	FlY float64 `json:"fl_y"`
	Cx  float64 `json:"cx"`
	Cy  float64 `json:"cy"`
	W   int     `json:"w"`
	H   int     `json:"h"`
	K1  float64 `json:"k1"`
	K2  float64 `json:"k2"`
	K3  float64 `json:"k3"`
	P1  float64 `json:"p1"`
	P2  float64 `json:"p2"`
}

// merge fills zero fields of in from def.
func (in intrinsics) merge(def intrinsics) intrinsics {
	pick := func(v, d float64) float64 {
		if v != 0 {
			return v
		}
		return d
	}
	if in.W == 0 {
		in.W = def.W
	}
	if in.H == 0 {
		in.H = def.H
	}
	in.FlX, in.FlY = pick(in.FlX, def.FlX), pick(in.FlY, def.FlY)
	in.Cx, in.Cy = pick(in.Cx, def.Cx), pick(in.Cy, def.Cy)
	in.K1, in.K2, in.K3 = pick(in.K1, def.K1), pick(in.K2, def.K2), pick(in.K3, def.K3)
	in.P1, in.P2 = pick(in.P1, def.P1), pick(in.P2, def.P2)
	return in
}

type frame struct {
	intrinsics
	FilePath        string         `json:"file_path"`
	TransformMatrix [4][4]float64  `json:"transform_matrix"`
}

type transforms struct {
	intrinsics
	CameraModel string  `json:"camera_model"`
	PLYFilePath string  `json:"ply_file_path"`
	Frames      []frame `json:"frames"`
}

// Options controls how a project is loaded.
type Options struct {
	// KeepCRS skips the automatic centring and scaling of poses and points.
	KeepCRS bool

	// ImageCacheBytes bounds the memory of decoded images shared by all
	// cameras. 0 means DefaultImageCacheBytes; negative means unlimited.
	ImageCacheBytes int64
}

// LoadNerfstudio reads dir/transforms.json, the point cloud it names and
// prepares lazily loaded images for every frame.
func LoadNerfstudio(dir string, opts Options) (*splat.Scene, error) {
	data, err := os.ReadFile(filepath.Join(dir, TransformsFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", TransformsFile, err)
	}
	var tf transforms
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidProject, TransformsFile, err)
	}
	if len(tf.Frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrInvalidProject, TransformsFile)
	}
	if tf.PLYFilePath == "" {
		return nil, fmt.Errorf("%w: %s has no ply_file_path", ErrInvalidProject, TransformsFile)
	}
	if tf.CameraModel != "" && tf.CameraModel != "OPENCV" && tf.CameraModel != "PINHOLE" {
		logger().Warn("scene: unsupported camera model treated as pinhole", "model", tf.CameraModel)
	}

	budget := opts.ImageCacheBytes
	switch {
	case budget == 0:
		budget = DefaultImageCacheBytes
	case budget < 0:
		budget = 0
	}
	images := NewImageCache(budget)

	cams := make([]*splat.Camera, 0, len(tf.Frames))
	for i, f := range tf.Frames {
		in := f.intrinsics.merge(tf.intrinsics)
		if in.W <= 0 || in.H <= 0 || in.FlX <= 0 || in.FlY <= 0 {
			return nil, fmt.Errorf("%w: frame %d (%s) lacks intrinsics", ErrInvalidProject, i, f.FilePath)
		}
		if in.Cx == 0 && in.Cy == 0 {
			in.Cx, in.Cy = float64(in.W)/2, float64(in.H)/2
		}
		path := filepath.Join(dir, f.FilePath)
		cams = append(cams, &splat.Camera{
			ID:         f.FilePath,
			Width:      in.W,
			Height:     in.H,
			Fx:         in.FlX,
			Fy:         in.FlY,
			Cx:         in.Cx,
			Cy:         in.Cy,
			K1:         in.K1,
			K2:         in.K2,
			K3:         in.K3,
			P1:         in.P1,
			P2:         in.P2,
			CamToWorld: f.TransformMatrix,
			Source:     NewImageProvider(path, in.W, in.H, images),
		})
	}

	pts, err := ReadPointCloudFile(filepath.Join(dir, tf.PLYFilePath))
	if err != nil {
		return nil, err
	}
	s := &splat.Scene{Points: pts, Cameras: cams, Transform: splat.IdentityTransform()}
	if !opts.KeepCRS {
		Normalize(s)
	}
	logger().Info("scene: loaded nerfstudio project",
		"dir", dir, "cameras", len(cams), "points", pts.Len(), "scale", s.Transform.Scale)
	return s, nil
}
