package parallel

// TileSize is the edge length in pixels of a square raster tile. Every
// Gaussian is binned against this grid and a tile's pixels are composited
// by one work item (one workgroup on the GPU).
const TileSize = 16

// Tile is one cell of a TileGrid. Edge tiles are clipped to the image.
type Tile struct {
	// X and Y are the tile column and row.
	X, Y int

	// Width and Height are the clipped pixel dimensions.
	Width, Height int
}

// ID returns the row-major tile index in a grid with tilesX columns.
func (t Tile) ID(tilesX int) int { return t.Y*tilesX + t.X }

// Bounds returns the tile's pixel rectangle as (x, y, w, h).
func (t Tile) Bounds() (x, y, w, h int) {
	return t.X * TileSize, t.Y * TileSize, t.Width, t.Height
}
