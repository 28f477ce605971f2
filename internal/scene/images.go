package scene

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/internal/cache"
)

// DefaultImageCacheBytes is the image memory budget used when a project is
// loaded without an explicit one.
const DefaultImageCacheBytes = 4 << 30

type imageKey struct {
	src       *ImageProvider
	downscale int
}

// ImageCache bounds the memory held by decoded images across every camera
// of a scene. Least recently used images are dropped and decoded again on
// their next use.
type ImageCache struct {
	c *cache.Cache[imageKey, *splat.Image]
}

// NewImageCache returns a cache holding at most budget bytes of pixels.
// A budget of 0 means unlimited.
func NewImageCache(budget int64) *ImageCache {
	return &ImageCache{c: cache.New[imageKey, *splat.Image](budget, func(img *splat.Image) int64 {
		return int64(8 * len(img.Pix))
	})}
}

// Stats returns the cache counters.
func (c *ImageCache) Stats() cache.Stats { return c.c.Stats() }

// ImageProvider serves one camera image at any downscale factor. Images
// are decoded on first use and kept in an ImageCache.
type ImageProvider struct {
	path          string
	width, height int
	cache         *ImageCache

	mu  sync.Mutex
	src image.Image // in-memory source, nil for files
}

var _ splat.ImageSource = (*ImageProvider)(nil)

// NewImageProvider returns a provider for the image at path, which must be
// width x height pixels. A nil cache gives the provider a private,
// unbounded one.
func NewImageProvider(path string, width, height int, c *ImageCache) *ImageProvider {
	if c == nil {
		c = NewImageCache(0)
	}
	return &ImageProvider{path: path, width: width, height: height, cache: c}
}

// FromImage returns a provider serving an already decoded image.
func FromImage(img image.Image) *ImageProvider {
	b := img.Bounds()
	p := NewImageProvider("", b.Dx(), b.Dy(), nil)
	p.src = img
	return p
}

// Image returns the image at 1/downscale resolution (integer division of
// the full size) as RGB in [0, 1].
func (p *ImageProvider) Image(downscale int) (*splat.Image, error) {
	if downscale < 1 {
		return nil, fmt.Errorf("%w: downscale %d", splat.ErrInvalidImageSize, downscale)
	}
	w, h := p.width/downscale, p.height/downscale
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d at 1/%d", splat.ErrInvalidImageSize, p.width, p.height, downscale)
	}
	return p.cache.c.GetOrLoad(imageKey{p, downscale}, func() (*splat.Image, error) {
		// one decode at a time per camera
		p.mu.Lock()
		defer p.mu.Unlock()
		src, err := p.source()
		if err != nil {
			return nil, err
		}
		if downscale > 1 {
			dst := image.NewRGBA(image.Rect(0, 0, w, h))
			xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
			src = dst
		}
		logger().Debug("scene: image loaded", "path", p.path, "downscale", downscale, "width", w, "height", h)
		return toFloat(src), nil
	})
}

// source returns the full-resolution image. Caller holds p.mu.
func (p *ImageProvider) source() (image.Image, error) {
	if p.src != nil {
		return p.src, nil
	}
	full, err := decodeFile(p.path)
	if err != nil {
		return nil, err
	}
	if b := full.Bounds(); b.Dx() != p.width || b.Dy() != p.height {
		return nil, fmt.Errorf("%w: %s is %dx%d, camera expects %dx%d",
			splat.ErrInvalidImageSize, p.path, b.Dx(), b.Dy(), p.width, p.height)
	}
	return full, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// toFloat converts img to interleaved RGB floats in [0, 1]. Alpha is
// ignored.
func toFloat(img image.Image) *splat.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &splat.Image{Width: w, Height: h, Pix: make([]float64, 3*w*h)}
	for y := range h {
		for x := range w {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := 3 * (y*w + x)
			out.Pix[i] = float64(r) / 0xffff
			out.Pix[i+1] = float64(g) / 0xffff
			out.Pix[i+2] = float64(bl) / 0xffff
		}
	}
	return out
}
