// Package scene loads training scenes: posed cameras with their images and
// the sparse point cloud that seeds the Gaussians.
package scene
