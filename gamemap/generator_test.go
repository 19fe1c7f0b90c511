package gamemap

import (
	"errors"
	"math/rand"
	"testing"
)

func TestGenerateRejectsSmallMaps(t *testing.T) {
	_, err := Generate(Options{Width: 10, Height: 100})
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestGenerateIsDeterministicWithoutSeed(t *testing.T) {
	a, err := Generate(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Grid.Tiles {
		if a.Grid.Tiles[i] != b.Grid.Tiles[i] {
			t.Fatalf("tile %d differs between runs: %v vs %v", i, a.Grid.Tiles[i], b.Grid.Tiles[i])
		}
	}
}

func TestSeededDecorationKeepsGameplayTiles(t *testing.T) {
	plain, _ := Generate(DefaultOptions())
	for _, seed := range []int64{1, 7, 42, 1234} {
		opts := DefaultOptions()
		opts.Seed = seed
		m, err := Generate(opts)
		if err != nil {
			t.Fatal(err)
		}
		for name, area := range m.Areas {
			c := area.Center
			for y := c.Y - area.Radius; y <= c.Y+area.Radius; y++ {
				for x := c.X - area.Radius; x <= c.X+area.Radius; x++ {
					if !area.Contains(x, y) {
						continue
					}
					if m.Grid.At(x, y) != plain.Grid.At(x, y) {
						t.Fatalf("seed %d: area %s tile (%d,%d) changed", seed, name, x, y)
					}
				}
			}
		}
		sp := m.Spawns.Player
		for y := sp.Y - clearingRadius; y <= sp.Y+clearingRadius; y++ {
			for x := sp.X - clearingRadius; x <= sp.X+clearingRadius; x++ {
				if !IsWalkable(m.Grid, x, y) {
					t.Fatalf("seed %d: clearing tile (%d,%d) not walkable", seed, x, y)
				}
			}
		}
	}
}

func TestSpecialAreasAndSpawns(t *testing.T) {
	m, err := Generate(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if m.Spawns.Player != (Point{X: 50, Y: 58}) {
		t.Fatalf("unexpected player spawn %+v", m.Spawns.Player)
	}
	town := m.Areas[AreaTownCenter].Center
	if got := m.Grid.At(town.X, town.Y); got != TileTown {
		t.Errorf("town centre tile = %v", got)
	}
	cave := m.Areas[AreaCaveEntrance].Center
	if got := m.Grid.At(cave.X, cave.Y); got != TileCaveEntrance {
		t.Errorf("cave centre tile = %v", got)
	}
	d := m.Areas[AreaDungeonEntrance]
	if got := m.Grid.At(d.Center.X, d.Center.Y-d.Radius); got != TileDungeonEntrance {
		t.Errorf("dungeon entrance tile = %v", got)
	}
	if got := m.Grid.At(d.Center.X+d.Radius, d.Center.Y); got != TileDungeonWall {
		t.Errorf("dungeon east edge = %v, want wall", got)
	}
	for _, p := range m.Spawns.Mobs {
		if !IsWalkable(m.Grid, p.X, p.Y) {
			t.Errorf("mob spawn %+v not walkable", p)
		}
	}
	if len(m.Triggers) == 0 || m.Triggers[0].Kind != "shop" {
		t.Errorf("expected shop trigger first, got %+v", m.Triggers)
	}
}

func TestBridgesOnlyReplaceWater(t *testing.T) {
	m, _ := Generate(DefaultOptions())
	bridges := 0
	for _, tile := range m.Grid.Tiles {
		if tile == TileBridge {
			bridges++
		}
	}
	if bridges == 0 {
		t.Fatal("expected bridge tiles between town and treasure island")
	}
	// 宝藏岛中心依旧是宝藏地块，桥不会覆盖陆地
	ti := m.Areas[AreaTreasureIsland].Center
	if m.Grid.At(ti.X, ti.Y) != TileTreasure {
		t.Fatalf("treasure tile overwritten")
	}
}

func TestIsWalkable(t *testing.T) {
	g := NewGrid(4, 4)
	g.Set(1, 1, TileGrass)
	g.Set(2, 1, TileRock)
	g.Set(3, 1, TileDungeonWall)
	g.Set(0, 1, TileBridge)

	cases := []struct {
		x, y int
		want bool
	}{
		{1, 1, true},
		{0, 1, true},
		{2, 1, false},
		{3, 1, false},
		{0, 0, false},
		{-1, 1, false},
		{4, 1, false},
		{1, 4, false},
	}
	for _, c := range cases {
		if got := IsWalkable(g, c.x, c.y); got != c.want {
			t.Errorf("IsWalkable(%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
	if IsWalkable(nil, 0, 0) {
		t.Error("nil grid must not be walkable")
	}
}

func TestIsWalkableRandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for n := 0; n < 50; n++ {
		g := NewGrid(8+rng.Intn(8), 8+rng.Intn(8))
		for i := range g.Tiles {
			g.Tiles[i] = Tile(rng.Intn(int(TileTreasure) + 1))
		}
		for y := -1; y <= g.Height; y++ {
			for x := -1; x <= g.Width; x++ {
				want := g.InBounds(x, y) && walkable[g.At(x, y)]
				if IsWalkable(g, x, y) != want {
					t.Fatalf("grid %d: mismatch at (%d,%d)", n, x, y)
				}
			}
		}
	}
}
