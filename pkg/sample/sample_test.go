package sample

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetviewdl/pkg/network"
)

func straight(start orb.Point, bearing, length float64) orb.LineString {
	return orb.LineString{start, geo.PointAtBearingAndDistance(start, bearing, length)}
}

func distances(points []Point) []float64 {
	var out []float64
	for i := 1; i < len(points); i++ {
		out = append(out, geo.DistanceHaversine(points[i-1].Location, points[i].Location))
	}
	return out
}

func TestAlongMeridian(t *testing.T) {
	line := straight(orb.Point{0, 0}, 0, 1000)
	points := slices.Collect(Along(line, 200, Fixed))

	require.Len(t, points, 6)
	assert.Equal(t, line[0], points[0].Location)
	assert.Equal(t, line[1], points[5].Location)
	for _, d := range distances(points) {
		assert.InDelta(t, 200, d, 1e-6)
	}
	for i, p := range points {
		assert.Equal(t, i, p.Index)
		assert.InDelta(t, 0, p.Bearing, 1e-6)
	}
}

func TestAlongHighLatitudeKeepsMetricSpacing(t *testing.T) {
	line := straight(orb.Point{10, 60}, 90, 1050)
	points := slices.Collect(Along(line, 200, Fixed))

	require.Len(t, points, 7)
	d := distances(points)
	for _, step := range d[:5] {
		assert.InDelta(t, 200, step, 1e-3)
	}
	assert.InDelta(t, 50, d[5], 1e-3, "final remainder")
	assert.Equal(t, line[1], points[6].Location)
	assert.InDelta(t, 90, points[0].Bearing, 0.5)
}

func TestAlongPolylineFollowsPath(t *testing.T) {
	corner := geo.PointAtBearingAndDistance(orb.Point{2, 45}, 0, 300)
	end := geo.PointAtBearingAndDistance(corner, 90, 300)
	line := orb.LineString{{2, 45}, corner, end}

	points := slices.Collect(Along(line, 200, Fixed))
	require.Len(t, points, 4)

	assert.InDelta(t, 200, geo.DistanceHaversine(line[0], points[1].Location), 1e-6)
	assert.InDelta(t, 100, geo.DistanceHaversine(corner, points[2].Location), 1e-3)
	assert.Equal(t, end, points[3].Location)
	assert.InDelta(t, 0, points[1].Bearing, 1e-6)
	assert.InDelta(t, 90, points[2].Bearing, 0.5)
}

func TestAlongSkipsCentimetreTail(t *testing.T) {
	line := straight(orb.Point{0, 0}, 0, 400.005)
	points := slices.Collect(Along(line, 200, Fixed))

	require.Len(t, points, 3)
	assert.Equal(t, line[1], points[2].Location)
}

func TestAlongEvenMode(t *testing.T) {
	line := straight(orb.Point{0, 0}, 45, 1050)
	points := slices.Collect(Along(line, 200, Even))

	require.Len(t, points, 6)
	for _, d := range distances(points) {
		assert.InDelta(t, 210, d, 1e-3)
	}

	short := slices.Collect(Along(straight(orb.Point{0, 0}, 45, 50), 200, Even))
	require.Len(t, short, 2, "both endpoints even when shorter than the spacing")
}

func TestAlongShortLineKeepsBothEndpoints(t *testing.T) {
	line := straight(orb.Point{0, 0}, 180, 30)
	points := slices.Collect(Along(line, 200, Fixed))

	require.Len(t, points, 2)
	assert.Equal(t, line[0], points[0].Location)
	assert.Equal(t, line[1], points[1].Location)
}

func TestAlongDegenerateLine(t *testing.T) {
	points := slices.Collect(Along(orb.LineString{{1, 1}, {1, 1}}, 10, Fixed))
	require.Len(t, points, 1)
	assert.Equal(t, orb.Point{1, 1}, points[0].Location)

	assert.Empty(t, slices.Collect(Along(orb.LineString{}, 10, Fixed)))
}

func TestInvalidSpacing(t *testing.T) {
	line := straight(orb.Point{0, 0}, 0, 100)
	assert.Zero(t, Count(Along(line, 0, Fixed)))
	assert.Zero(t, Count(Along(line, -5, Fixed)))

	assert.Error(t, Validate(0))
	assert.NoError(t, Validate(20))
}

func gridNetwork() *network.Network {
	origin := orb.Point{13.4, 52.5}
	var ways []network.Way
	for k := 0; k < 5; k++ {
		// north-south roads every 250 m
		start := geo.PointAtBearingAndDistance(origin, 90, float64(k)*250)
		ways = append(ways, network.Way{ID: int64(k + 1), Line: straight(start, 0, 1000)})
	}
	for k := 0; k < 5; k++ {
		start := geo.PointAtBearingAndDistance(origin, 0, float64(k)*250)
		ways = append(ways, network.Way{ID: int64(k + 6), Line: straight(start, 90, 1000)})
	}
	return network.New(ways)
}

func TestGenerateGridIsDeterministic(t *testing.T) {
	net := gridNetwork()
	seq := Generate(net, 200, Fixed)

	first := slices.Collect(seq)
	second := slices.Collect(seq)

	require.Len(t, first, 60)
	assert.Equal(t, first, second)
	assert.Equal(t, 60, Count(Generate(net, 200, Fixed)))

	assert.Equal(t, int64(1), first[0].WayID)
	assert.Equal(t, "1/0/0", first[0].Key())
	assert.Equal(t, "10/0/5", first[59].Key())
}

func TestGenerateStopsEarly(t *testing.T) {
	n := 0
	for range Generate(gridNetwork(), 200, Fixed) {
		n++
		if n == 7 {
			break
		}
	}
	assert.Equal(t, 7, n)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("even")
	require.NoError(t, err)
	assert.Equal(t, Even, m)
	assert.Equal(t, "even", m.String())

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Fixed, m)

	_, err = ParseMode("random")
	assert.Error(t, err)
}

func TestCollectAndFeatureCollection(t *testing.T) {
	net := network.New([]network.Way{{ID: 3, Line: orb.LineString{{0, 0}, geo.PointAtBearingAndDistance(orb.Point{0, 0}, 90, 100)}}})

	points := Collect(Generate(net, 40, Fixed))
	require.Len(t, points, 4)

	fc := FeatureCollection(Generate(net, 40, Fixed))
	require.Len(t, fc.Features, 4)
	assert.Equal(t, int64(3), fc.Features[3].Properties["way_id"])
	assert.Equal(t, 3, fc.Features[3].Properties["index"])
	assert.Equal(t, 90.0, fc.Features[0].Properties["bearing"])
}
