package clip

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetviewdl/pkg/aoi"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/network"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func assertPointNear(t *testing.T, want, got orb.Point) {
	t.Helper()
	assert.InDelta(t, want[0], got[0], 1e-9, "lon")
	assert.InDelta(t, want[1], got[1], 1e-9, "lat")
}

func way(id int64, pts ...orb.Point) network.Way {
	return network.Way{ID: id, Class: "residential", Line: orb.LineString(pts)}
}

func TestClipKeepsInsideWayUnchanged(t *testing.T) {
	net := network.New([]network.Way{way(1, orb.Point{0.2, 0.2}, orb.Point{0.5, 0.6}, orb.Point{0.8, 0.7})})
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, net.Ways[0].Line, out.Ways[0].Line)
	assert.Equal(t, "residential", out.Ways[0].Class)
}

func TestClipTruncatesAtBoundary(t *testing.T) {
	net := network.New([]network.Way{way(1, orb.Point{-1, 0.5}, orb.Point{2, 0.5})})
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	line := out.Ways[0].Line
	require.Len(t, line, 2)
	assertPointNear(t, orb.Point{0, 0.5}, line[0])
	assertPointNear(t, orb.Point{1, 0.5}, line[1])
}

func TestClipKeepsInteriorVertices(t *testing.T) {
	net := network.New([]network.Way{way(1, orb.Point{-0.5, 0.5}, orb.Point{0.5, 0.5}, orb.Point{0.5, 1.5})})
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	line := out.Ways[0].Line
	require.Len(t, line, 3)
	assertPointNear(t, orb.Point{0, 0.5}, line[0])
	assertPointNear(t, orb.Point{0.5, 0.5}, line[1])
	assertPointNear(t, orb.Point{0.5, 1}, line[2])
}

func TestClipSplitsWayLeavingAndReentering(t *testing.T) {
	net := network.New([]network.Way{way(9, orb.Point{-1, 0.5}, orb.Point{4, 0.5})})
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1), square(2, 0, 3, 1)})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, network.Key{ID: 9, Part: 0}, out.Ways[0].Key())
	assert.Equal(t, network.Key{ID: 9, Part: 1}, out.Ways[1].Key())
	assertPointNear(t, orb.Point{0, 0.5}, out.Ways[0].Line[0])
	assertPointNear(t, orb.Point{1, 0.5}, out.Ways[0].Line[1])
	assertPointNear(t, orb.Point{2, 0.5}, out.Ways[1].Line[0])
	assertPointNear(t, orb.Point{3, 0.5}, out.Ways[1].Line[1])
}

func TestClipExcludesHoles(t *testing.T) {
	outer := square(0, 0, 4, 4)[0]
	hole := orb.Ring{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}}
	area := aoi.New(orb.MultiPolygon{orb.Polygon{outer, hole}})
	net := network.New([]network.Way{
		way(1, orb.Point{-1, 2}, orb.Point{5, 2}),
		way(2, orb.Point{1.5, 1.5}, orb.Point{2.5, 2.5}),
	})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len(), "way 2 lies in the hole")

	assertPointNear(t, orb.Point{0, 2}, out.Ways[0].Line[0])
	assertPointNear(t, orb.Point{1, 2}, out.Ways[0].Line[1])
	assertPointNear(t, orb.Point{3, 2}, out.Ways[1].Line[0])
	assertPointNear(t, orb.Point{4, 2}, out.Ways[1].Line[1])
}

func TestClipConcaveArea(t *testing.T) {
	// L shape: the notch [1,2]x[1,2] is outside
	l := orb.Polygon{{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}, {0, 0}}}
	area := aoi.New(orb.MultiPolygon{l})
	net := network.New([]network.Way{
		way(1, orb.Point{0.5, 1.5}, orb.Point{1.5, 1.5}),
		way(2, orb.Point{1.5, 1.2}, orb.Point{1.8, 1.8}),
	})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(1), out.Ways[0].ID)
	assertPointNear(t, orb.Point{1, 1.5}, out.Ways[0].Line[1])
}

func TestClipEveryResultIntersectsArea(t *testing.T) {
	area := aoi.New(orb.MultiPolygon{orb.Polygon{{{0, 0}, {3, 0}, {3, 3}, {1.5, 1.5}, {0, 3}, {0, 0}}}})

	var ways []network.Way
	for i := 0; i < 40; i++ {
		y := -0.5 + float64(i)*0.1
		ways = append(ways, way(int64(i), orb.Point{-1, y}, orb.Point{1.5, y + 0.3}, orb.Point{4, y}))
	}
	net := network.New(ways)

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.NotZero(t, out.Len())

	for _, w := range out.Ways {
		require.GreaterOrEqual(t, len(w.Line), 2)
		for i := 1; i < len(w.Line); i++ {
			mid := orb.Point{(w.Line[i-1][0] + w.Line[i][0]) / 2, (w.Line[i-1][1] + w.Line[i][1]) / 2}
			assert.True(t, area.Contains(mid), "way %d part %d segment %d leaves the area", w.ID, w.Part, i)
		}
	}
}

func TestClipPreservesInputOrder(t *testing.T) {
	var ways []network.Way
	for i := 0; i < 300; i++ {
		x := 0.005 + float64((i*37)%100)/101
		ways = append(ways, way(int64(1000-i), orb.Point{x, 0.1}, orb.Point{x, 0.9}))
	}
	net := network.New(ways)
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	out, err := Clip(net, area)
	require.NoError(t, err)
	require.Equal(t, 300, out.Len())
	for i := range out.Ways {
		assert.Equal(t, int64(1000-i), out.Ways[i].ID)
	}
}

func TestClipEmptyExtract(t *testing.T) {
	net := network.New([]network.Way{way(1, orb.Point{10, 10}, orb.Point{11, 11})})
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	_, err := Clip(net, area)
	var empty *errs.EmptyExtractError
	require.True(t, errors.As(err, &empty), fmt.Sprintf("got %v", err))
	assert.Equal(t, 1, empty.Ways)
}

func TestClipCRSMismatch(t *testing.T) {
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	projected := &network.Network{Ways: []network.Way{way(1, orb.Point{0.5, 0.5}, orb.Point{0.6, 0.6})}, CRS: "EPSG:3857"}
	_, err := Clip(projected, area)
	var mismatch *errs.CrsMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "EPSG:3857", mismatch.NetworkCRS)

	// metre coordinates labelled as WGS84
	mislabelled := aoi.New(orb.MultiPolygon{square(1491000, 6890000, 1493000, 6892000)})
	_, err = Clip(network.New([]network.Way{way(1, orb.Point{0.5, 0.5}, orb.Point{0.6, 0.6})}), mislabelled)
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, mismatch.Reason, "area coordinates")

	farNet := network.New([]network.Way{way(1, orb.Point{1491000, 6890000}, orb.Point{1492000, 6891000})})
	_, err = Clip(farNet, area)
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, mismatch.Reason, "network coordinates")
}

func TestBoundaryContains(t *testing.T) {
	b := newBoundary(aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)}))
	assert.True(t, b.contains(orb.Point{0.5, 0.5}))
	assert.False(t, b.contains(orb.Point{1.5, 0.5}))
	assert.False(t, b.contains(orb.Point{0.5, -0.5}))

	for _, p := range []orb.Point{{0.5, 0}, {0.5, 1}, {0, 0.5}, {1, 0.5}, {1, 1}} {
		assert.True(t, b.contains(p), "boundary point %v", p)
	}
}

func TestClipKeepsWaysAlongTheBoundary(t *testing.T) {
	area := aoi.New(orb.MultiPolygon{square(0, 0, 1, 1)})

	for name, line := range map[string]orb.LineString{
		"bottom": {{-0.5, 0}, {1.5, 0}},
		"top":    {{-0.5, 1}, {1.5, 1}},
		"left":   {{0, -0.5}, {0, 1.5}},
		"right":  {{1, -0.5}, {1, 1.5}},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := Clip(network.New([]network.Way{way(1, line...)}), area)
			require.NoError(t, err)
			require.Equal(t, 1, out.Len())

			got := out.Ways[0].Line
			require.Len(t, got, 2)
			bb := got.Bound()
			assert.InDelta(t, 1, (bb.Max[0]-bb.Min[0])+(bb.Max[1]-bb.Min[1]), 1e-9, "clipped to one side of the square")
		})
	}
}
