package gamemap

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const (
	// MinSize 地图最小边长，低于该值无法容纳全部特殊区域
	MinSize = 64
	// DefaultSize 默认地图边长
	DefaultSize = 100

	clearingRadius = 2
	beachThreshold = 0.92
)

// ErrTooSmall 地图尺寸不足
var ErrTooSmall = errors.New("gamemap: dimensions too small")

// Point 整数格坐标
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Shape 特殊区域的成员判定方式
type Shape int

const (
	ShapeCircle  Shape = iota // 欧氏圆
	ShapeDiamond              // 曼哈顿菱形
)

// Area 具名特殊区域
type Area struct {
	Name   string `json:"name"`
	Center Point  `json:"center"`
	Radius int    `json:"radius"`
	Shape  Shape  `json:"shape"`
}

// Contains 判断格子是否属于区域
func (a Area) Contains(x, y int) bool {
	dx, dy := x-a.Center.X, y-a.Center.Y
	switch a.Shape {
	case ShapeDiamond:
		return abs(dx)+abs(dy) <= a.Radius
	default:
		return dx*dx+dy*dy <= a.Radius*a.Radius
	}
}

// Trigger 客户端/服务端共用的区域触发器（商店、副本入口等）
type Trigger struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
}

// Light 装饰性光源
type Light struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
	Color  string `json:"color"`
}

// Secret 隐藏区域
type Secret struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
}

// Spawns 出生点
type Spawns struct {
	Player Point   `json:"player"`
	Mobs   []Point `json:"mobs"`
}

// Map 生成结果：网格 + 元数据
type Map struct {
	Grid     *Grid           `json:"grid"`
	Spawns   Spawns          `json:"spawns"`
	Areas    map[string]Area `json:"areas"`
	Bridges  [][2]Point      `json:"bridges"`
	Triggers []Trigger       `json:"triggers"`
	Lights   []Light         `json:"lights"`
	Secrets  []Secret        `json:"secrets"`
}

// Options 生成参数；Seed 为 0 时不做随机装饰，结果完全确定
type Options struct {
	Width  int
	Height int
	Seed   int64
}

// DefaultOptions 默认 100x100 无装饰
func DefaultOptions() Options {
	return Options{Width: DefaultSize, Height: DefaultSize}
}

// Generate 生成岛屿地图：椭圆主体 + 东侧“拇指”延伸 → 随机装饰 → 特殊区域 → 桥 → 出生点空地
func Generate(opts Options) (*Map, error) {
	w, h := opts.Width, opts.Height
	if w < MinSize || h < MinSize {
		return nil, fmt.Errorf("%w: %dx%d (min %d)", ErrTooSmall, w, h, MinSize)
	}
	g := NewGrid(w, h)
	buildLandmass(g)
	if opts.Seed != 0 {
		decorate(g, rand.New(rand.NewSource(opts.Seed)))
	}

	areas := layoutAreas(w, h)
	for _, name := range areaOrder {
		stampArea(g, areas[name])
	}

	m := &Map{Grid: g, Areas: areas}
	for _, pair := range bridgePairs {
		a, b := areas[pair[0]].Center, areas[pair[1]].Center
		drawBridge(g, a, b)
		m.Bridges = append(m.Bridges, [2]Point{a, b})
	}

	cx, cy := w/2, h/2
	m.Spawns.Player = Point{X: cx, Y: cy + 8}
	m.Spawns.Mobs = []Point{
		{X: cx - 10, Y: cy - 10},
		{X: cx + 10, Y: cy - 10},
		{X: cx - 10, Y: cy + 10},
		{X: cx + 10, Y: cy + 10},
		areas[AreaBossArena].Center,
	}
	for _, p := range m.Spawns.Mobs {
		if !IsWalkable(g, p.X, p.Y) {
			g.Set(p.X, p.Y, TileGrass)
		}
	}
	// 出生点空地最后处理，无论底层地形如何都保证可行走
	carveClearing(g, m.Spawns.Player, clearingRadius)

	m.Triggers = buildTriggers(areas)
	m.Lights = buildLights(areas)
	m.Secrets = []Secret{
		{Name: "treasure_cache", X: areas[AreaTreasureIsland].Center.X, Y: areas[AreaTreasureIsland].Center.Y, Radius: 1},
		{Name: "hidden_grove", X: w - w/8, Y: cy, Radius: 2},
	}
	return m, nil
}

// 特殊区域名称
const (
	AreaTownCenter      = "town_center"
	AreaBossArena       = "boss_arena"
	AreaCaveEntrance    = "cave_entrance"
	AreaDungeonEntrance = "dungeon_entrance"
	AreaTreasureIsland  = "treasure_island"
)

var areaOrder = []string{AreaTownCenter, AreaBossArena, AreaCaveEntrance, AreaDungeonEntrance, AreaTreasureIsland}

var bridgePairs = [][2]string{
	{AreaTownCenter, AreaTreasureIsland},
	{AreaDungeonEntrance, AreaTreasureIsland},
}

func layoutAreas(w, h int) map[string]Area {
	at := func(fx, fy float64) Point {
		return Point{X: int(float64(w) * fx), Y: int(float64(h) * fy)}
	}
	return map[string]Area{
		AreaTownCenter:      {Name: AreaTownCenter, Center: Point{X: w / 2, Y: h / 2}, Radius: 6, Shape: ShapeCircle},
		AreaBossArena:       {Name: AreaBossArena, Center: at(0.28, 0.28), Radius: 5, Shape: ShapeCircle},
		AreaCaveEntrance:    {Name: AreaCaveEntrance, Center: at(0.72, 0.30), Radius: 2, Shape: ShapeDiamond},
		AreaDungeonEntrance: {Name: AreaDungeonEntrance, Center: at(0.30, 0.72), Radius: 4, Shape: ShapeDiamond},
		AreaTreasureIsland:  {Name: AreaTreasureIsland, Center: at(0.88, 0.86), Radius: 4, Shape: ShapeCircle},
	}
}

func buildLandmass(g *Grid) {
	w, h := float64(g.Width), float64(g.Height)
	cx, cy := w/2, h/2
	rx, ry := w*0.38, h*0.34
	thumbX0, thumbX1 := cx+rx*0.6, cx+rx+w*0.08
	thumbY0, thumbY1 := cy-h*0.06, cy+h*0.06

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			fx, fy := float64(x), float64(y)
			d := math.Pow((fx-cx)/rx, 2) + math.Pow((fy-cy)/ry, 2)
			switch {
			case d <= beachThreshold:
				g.Set(x, y, TileGrass)
			case d <= 1:
				g.Set(x, y, TileSand)
			}
			if fx >= thumbX0 && fx <= thumbX1 && fy >= thumbY0 && fy <= thumbY1 {
				g.Set(x, y, TileGrass)
			}
		}
	}
}

// decorate 随机散布岩石与泥地，只作用于草地
func decorate(g *Grid, rng *rand.Rand) {
	for i := range g.Tiles {
		if g.Tiles[i] != TileGrass {
			continue
		}
		switch r := rng.Float64(); {
		case r < 0.03:
			g.Tiles[i] = TileRock
		case r < 0.08:
			g.Tiles[i] = TileDirt
		}
	}
}

// stampArea 扫描区域包围盒，对属于区域的格子写入对应地块
func stampArea(g *Grid, a Area) {
	c := a.Center
	for y := c.Y - a.Radius; y <= c.Y+a.Radius; y++ {
		for x := c.X - a.Radius; x <= c.X+a.Radius; x++ {
			if !a.Contains(x, y) {
				continue
			}
			g.Set(x, y, areaTile(a, x, y))
		}
	}
}

func areaTile(a Area, x, y int) Tile {
	c := a.Center
	switch a.Name {
	case AreaTownCenter:
		return TileTown
	case AreaBossArena:
		return TileBossArena
	case AreaCaveEntrance:
		if x == c.X && y == c.Y {
			return TileCaveEntrance
		}
		return TileDirt
	case AreaDungeonEntrance:
		edge := abs(x-c.X)+abs(y-c.Y) == a.Radius
		switch {
		case edge && x == c.X && y == c.Y-a.Radius:
			return TileDungeonEntrance
		case edge:
			return TileDungeonWall
		default:
			return TileDungeonFloor
		}
	case AreaTreasureIsland:
		if x == c.X && y == c.Y {
			return TileTreasure
		}
		return TileSand
	}
	return TileGrass
}

// drawBridge Bresenham 直线，仅覆盖水面
func drawBridge(g *Grid, a, b Point) {
	x0, y0, x1, y1 := a.X, a.Y, b.X, b.Y
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if g.InBounds(x0, y0) && g.At(x0, y0) == TileWater {
			g.Set(x0, y0, TileBridge)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func carveClearing(g *Grid, p Point, r int) {
	for y := p.Y - r; y <= p.Y+r; y++ {
		for x := p.X - r; x <= p.X+r; x++ {
			g.Set(x, y, TileGrass)
		}
	}
}

func buildTriggers(areas map[string]Area) []Trigger {
	town := areas[AreaTownCenter].Center
	out := []Trigger{{Name: "shop", Kind: "shop", X: town.X, Y: town.Y, Radius: 3}}
	for _, name := range areaOrder[1:] {
		a := areas[name]
		out = append(out, Trigger{Name: name, Kind: "area", X: a.Center.X, Y: a.Center.Y, Radius: a.Radius})
	}
	return out
}

func buildLights(areas map[string]Area) []Light {
	t := areas[AreaTownCenter]
	off := t.Radius - 1
	lights := []Light{
		{X: t.Center.X - off, Y: t.Center.Y - off, Radius: 4, Color: "#ffd27f"},
		{X: t.Center.X + off, Y: t.Center.Y - off, Radius: 4, Color: "#ffd27f"},
		{X: t.Center.X - off, Y: t.Center.Y + off, Radius: 4, Color: "#ffd27f"},
		{X: t.Center.X + off, Y: t.Center.Y + off, Radius: 4, Color: "#ffd27f"},
	}
	for _, name := range []string{AreaCaveEntrance, AreaDungeonEntrance, AreaBossArena} {
		c := areas[name].Center
		lights = append(lights, Light{X: c.X, Y: c.Y, Radius: 3, Color: "#ff7040"})
	}
	return lights
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
