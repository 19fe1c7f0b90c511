package gamemap

// Tile 地块类型（单字节，整张地图一经生成即不可变）
type Tile uint8

const (
	TileWater Tile = iota
	TileGrass
	TileRock
	TileSand
	TileDirt
	TileTown
	TileBossArena
	TileCaveEntrance
	TileBridge
	TileDungeonFloor
	TileDungeonWall
	TileDungeonEntrance
	TileTreasure
)

var tileNames = [...]string{
	TileWater:           "water",
	TileGrass:           "grass",
	TileRock:            "rock",
	TileSand:            "sand",
	TileDirt:            "dirt",
	TileTown:            "town",
	TileBossArena:       "boss_arena",
	TileCaveEntrance:    "cave_entrance",
	TileBridge:          "bridge",
	TileDungeonFloor:    "dungeon_floor",
	TileDungeonWall:     "dungeon_wall",
	TileDungeonEntrance: "dungeon_entrance",
	TileTreasure:        "treasure",
}

func (t Tile) String() string {
	if int(t) < len(tileNames) {
		return tileNames[t]
	}
	return "unknown"
}

// walkable 显式的可行走集合；不在集合中的类型一律不可行走
var walkable = map[Tile]bool{
	TileGrass:           true,
	TileSand:            true,
	TileDirt:            true,
	TileTown:            true,
	TileBossArena:       true,
	TileCaveEntrance:    true,
	TileBridge:          true,
	TileDungeonFloor:    true,
	TileDungeonEntrance: true,
	TileTreasure:        true,
}

// Walkable 判断地块类型本身是否可行走
func (t Tile) Walkable() bool { return walkable[t] }

// Grid 二维地块数组，按行优先存储
type Grid struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tiles  []Tile `json:"tiles"`
}

// NewGrid 创建全部为水的网格
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Tiles: make([]Tile, width*height)}
}

// InBounds 坐标是否落在网格内
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// At 读取地块；越界返回水
func (g *Grid) At(x, y int) Tile {
	if !g.InBounds(x, y) {
		return TileWater
	}
	return g.Tiles[y*g.Width+x]
}

// Set 写入地块；越界静默忽略
func (g *Grid) Set(x, y int, t Tile) {
	if g.InBounds(x, y) {
		g.Tiles[y*g.Width+x] = t
	}
}

// IsWalkable 碰撞判定的唯一依据：越界或类型不在可行走集合中都返回 false
func IsWalkable(g *Grid, x, y int) bool {
	if g == nil || !g.InBounds(x, y) {
		return false
	}
	return g.At(x, y).Walkable()
}
