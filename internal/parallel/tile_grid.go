package parallel

// TileGrid partitions an image into TileSize x TileSize tiles in row-major
// order.
type TileGrid struct {
	width, height  int
	tilesX, tilesY int
}

// NewTileGrid returns the tile grid covering a width x height image.
// Non-positive dimensions produce an empty grid.
func NewTileGrid(width, height int) TileGrid {
	if width <= 0 || height <= 0 {
		return TileGrid{}
	}
	return TileGrid{
		width:  width,
		height: height,
		tilesX: (width + TileSize - 1) / TileSize,
		tilesY: (height + TileSize - 1) / TileSize,
	}
}

// TilesX returns the number of tile columns.
func (g TileGrid) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g TileGrid) TilesY() int { return g.tilesY }

// TileCount returns the total number of tiles.
func (g TileGrid) TileCount() int { return g.tilesX * g.tilesY }

// Width returns the image width in pixels.
func (g TileGrid) Width() int { return g.width }

// Height returns the image height in pixels.
func (g TileGrid) Height() int { return g.height }

// TileAt returns tile (tx, ty). ok is false outside the grid.
func (g TileGrid) TileAt(tx, ty int) (t Tile, ok bool) {
	if tx < 0 || ty < 0 || tx >= g.tilesX || ty >= g.tilesY {
		return Tile{}, false
	}
	x, y := tx*TileSize, ty*TileSize
	return Tile{
		X:      tx,
		Y:      ty,
		Width:  min(TileSize, g.width-x),
		Height: min(TileSize, g.height-y),
	}, true
}

// TileByID returns the tile with row-major index id.
func (g TileGrid) TileByID(id int) (Tile, bool) {
	if g.tilesX == 0 {
		return Tile{}, false
	}
	return g.TileAt(id%g.tilesX, id/g.tilesX)
}

// ForEachTile runs fn for every tile on the pool and waits for completion.
// The grid is over-split relative to the worker count so that work stealing
// can balance tiles with long contributor lists.
func (g TileGrid) ForEachTile(p *WorkerPool, fn func(t Tile)) {
	p.ForChunks(g.TileCount(), p.Workers()*4, func(_, lo, hi int) {
		for id := lo; id < hi; id++ {
			t, _ := g.TileByID(id)
			fn(t)
		}
	})
}
