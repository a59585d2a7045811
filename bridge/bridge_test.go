package bridge

import (
	"math"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

func TestToWireScalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"bool", true, true},
		{"string", "hello", "hello"},
		{"int widens", 42, int64(42)},
		{"int16 widens", int16(7), int64(7)},
		{"uint widens", uint(9), int64(9)},
		{"float32 widens", float32(1.5), float64(1.5)},
		{"float64", 2.5, 2.5},
		{"bytes", []byte{1, 2}, []byte{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToWire(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToWireNilAndPointers(t *testing.T) {
	got, err := ToWire(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	var p *string
	got, err = ToWire(p)
	require.NoError(t, err)
	assert.Nil(t, got)

	s := "x"
	got, err = ToWire(&s)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestToWireUintOverflow(t *testing.T) {
	_, err := ToWire(uint64(math.MaxUint64))
	require.Error(t, err)
	assert.True(t, gmerrors.IsConversion(err))
}

func TestToWireSpecialTypes(t *testing.T) {
	now := time.Now()
	got, err := ToWire(now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = ToWire(90 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, dbtype.Duration{Seconds: 5400}, got)

	id := uuid.New()
	got, err = ToWire(id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), got)

	u, err := url.Parse("https://example.com/a?b=c")
	require.NoError(t, err)
	got, err = ToWire(*u)
	require.NoError(t, err)
	assert.Equal(t, u.String(), got)

	got, err = ToWire(model.Point{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.Equal(t, dbtype.Point3D{X: 1, Y: 2, Z: 3, SpatialRefId: SRIDCartesian3D}, got)

	got, err = ToWire(model.Incoming)
	require.NoError(t, err)
	assert.Equal(t, "Incoming", got)
}

func TestToWireCollectionsAndMaps(t *testing.T) {
	got, err := ToWire([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	got, err = ToWire(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, got)

	_, err = ToWire(map[int]string{1: "a"})
	require.Error(t, err)
}

func TestToWireRejectsUnsupportedTypes(t *testing.T) {
	_, err := ToWire(make(chan int))
	require.Error(t, err)
	_, err = ToWire(func() {})
	require.Error(t, err)
}

func TestFromWireScalars(t *testing.T) {
	got, err := FromWire(int64(42), reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = FromWire("hi", reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	got, err = FromWire(true, reflect.TypeOf(false))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = FromWire(float64(1.5), reflect.TypeOf(float32(0)))
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), got)
}

type mood string

type level int

func TestFromWireEnums(t *testing.T) {
	got, err := FromWire("happy", reflect.TypeOf(mood("")))
	require.NoError(t, err)
	assert.Equal(t, mood("happy"), got)

	got, err = FromWire(int64(3), reflect.TypeOf(level(0)))
	require.NoError(t, err)
	assert.Equal(t, level(3), got)
}

func TestFromWireNil(t *testing.T) {
	got, err := FromWire(nil, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = FromWire(nil, reflect.TypeOf((*string)(nil)))
	require.NoError(t, err)
	assert.Nil(t, got.(*string))
}

func TestFromWirePointerTarget(t *testing.T) {
	got, err := FromWire(int64(5), reflect.TypeOf((*int)(nil)))
	require.NoError(t, err)
	p, ok := got.(*int)
	require.True(t, ok)
	assert.Equal(t, 5, *p)
}

func TestFromWireTemporal(t *testing.T) {
	now := time.Now()
	timeType := reflect.TypeOf(time.Time{})

	for _, w := range []any{now, dbtype.LocalDateTime(now), dbtype.Date(now), dbtype.LocalTime(now), dbtype.Time(now)} {
		got, err := FromWire(w, timeType)
		require.NoError(t, err)
		assert.IsType(t, time.Time{}, got)
	}

	got, err := FromWire(dbtype.Duration{Days: 1, Seconds: 30, Nanos: 500}, reflect.TypeOf(time.Duration(0)))
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour+30*time.Second+500*time.Nanosecond, got)

	// Months have no fixed length; a month-bearing duration cannot land in
	// time.Duration.
	_, err = FromWire(dbtype.Duration{Months: 1}, reflect.TypeOf(time.Duration(0)))
	require.Error(t, err)
	assert.True(t, gmerrors.IsConversion(err))
}

func TestFromWireSpatialAndIdentifiers(t *testing.T) {
	got, err := FromWire(dbtype.Point3D{X: 1, Y: 2, Z: 3, SpatialRefId: SRIDCartesian3D}, reflect.TypeOf(model.Point{}))
	require.NoError(t, err)
	assert.Equal(t, model.Point{X: 1, Y: 2, Z: 3}, got)

	id := uuid.New()
	got, err = FromWire(id.String(), reflect.TypeOf(uuid.UUID{}))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = FromWire("not-a-uuid", reflect.TypeOf(uuid.UUID{}))
	require.Error(t, err)

	got, err = FromWire("https://example.com", reflect.TypeOf(url.URL{}))
	require.NoError(t, err)
	gotURL := got.(url.URL)
	assert.Equal(t, "https://example.com", gotURL.String())
}

func TestFromWireDirection(t *testing.T) {
	dirType := reflect.TypeOf(model.Outgoing)

	got, err := FromWire("Incoming", dirType)
	require.NoError(t, err)
	assert.Equal(t, model.Incoming, got)

	got, err = FromWire(int64(2), dirType)
	require.NoError(t, err)
	assert.Equal(t, model.Bidirectional, got)
}

func TestFromWireCollections(t *testing.T) {
	got, err := FromWire([]any{int64(1), int64(2)}, reflect.TypeOf([]int{}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	got, err = FromWire([]any{"a", "b"}, reflect.TypeOf([2]string{}))
	require.NoError(t, err)
	assert.Equal(t, [2]string{"a", "b"}, got)

	_, err = FromWire([]any{"a"}, reflect.TypeOf([2]string{}))
	require.Error(t, err)

	got, err = FromWire(map[string]any{"k": int64(1)}, reflect.TypeOf(map[string]int{}))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"k": 1}, got)
}

func TestBridgeRoundTripIdempotence(t *testing.T) {
	// A value pushed through ToWire and back through FromWire at its own
	// type must come back unchanged.
	cases := []any{
		"text",
		42,
		true,
		3.25,
		[]string{"a", "b", "c"},
		uuid.New(),
		model.Point{X: 4, Y: 5, Z: 6},
		model.Bidirectional,
		90 * time.Second,
	}
	for _, v := range cases {
		wire, err := ToWire(v)
		require.NoError(t, err)
		back, err := FromWire(wire, reflect.TypeOf(v))
		require.NoError(t, err)
		assert.Equal(t, v, back)

		// Second pass over the same wire value changes nothing.
		wire2, err := ToWire(back)
		require.NoError(t, err)
		assert.Equal(t, wire, wire2)
	}
}
