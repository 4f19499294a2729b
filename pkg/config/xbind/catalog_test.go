package xbind

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCatalog_Name(t *testing.T) {
	circleType := reflect.TypeFor[circle]()

	cat := NewCatalog().Name("circle", circleType).Name("CIRCLE", circleType)
	require.NoError(t, cat.Err())
	got, ok := cat.lookupName("Circle")
	assert.True(t, ok)
	assert.Equal(t, circleType, got)

	err := NewCatalog().Name("circle", circleType).Name("circle", reflect.TypeFor[rect]()).Err()
	assert.ErrorIs(t, err, ErrInconsistentMetadata)
	assert.Equal(t, ReasonDuplicateTypeName, ReasonOf(err))

	err = NewCatalog().Name("shape", shapeType).Err()
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, ReasonCannotCreateAbstractType, ReasonOf(err))

	assert.ErrorIs(t, NewCatalog().Name("", circleType).Err(), ErrNullArgument)
}

func TestCatalog_FirstErrorWins(t *testing.T) {
	cat := NewCatalog().
		Name("", nil).
		Default(shapeType, reflect.TypeFor[label]())
	assert.ErrorIs(t, cat.Err(), ErrNullArgument)

	// 带错误的 Catalog 使绑定失败
	_, err := Bind[limits](sectionOf(t, "burst: 1"), WithCatalog(cat))
	assert.ErrorIs(t, err, ErrNullArgument)
}

func TestCatalog_Freeze(t *testing.T) {
	cat := NewCatalog()
	assert.False(t, cat.Frozen())

	_, err := Bind[limits](sectionOf(t, "burst: 1"), WithCatalog(cat))
	require.NoError(t, err)
	assert.True(t, cat.Frozen())

	cat.Name("circle", reflect.TypeFor[circle]())
	assert.ErrorIs(t, cat.Err(), ErrCatalogFrozen)
	assert.Equal(t, ReasonCatalogFrozen, ReasonOf(cat.Err()))

	assert.Same(t, cat, cat.Freeze())
}

func TestCatalog_Registrations(t *testing.T) {
	tests := []struct {
		name   string
		cat    *Catalog
		kind   error
		reason string
	}{
		{"default abstract", NewCatalog().Default(shapeType, shapeType), ErrTypeMismatch, ReasonCannotCreateAbstractType},
		{"default any", NewCatalog().Default(shapeType, reflect.TypeFor[any]()), ErrTypeMismatch, ReasonCannotCreateObjectType},
		{"default not assignable", NewCatalog().Default(shapeType, reflect.TypeFor[label]()), ErrTypeMismatch, ReasonTypeNotAssignable},
		{"member default not assignable", NewCatalog().MemberDefault(canvasType, "Main", reflect.TypeFor[label]()), ErrTypeMismatch, ReasonTypeNotAssignable},
		{"member default nil", NewCatalog().MemberDefault(nil, "Main", reflect.TypeFor[circle]()), ErrNullArgument, ReasonNullArgument},
		{"converter invalid", NewCatalog().Converter(reflect.TypeFor[int](), Converter{}), ErrNullArgument, ReasonNullArgument},
		{"converter mismatch", NewCatalog().Converter(reflect.TypeFor[int](), Conv(parseCelsius(""))), ErrTypeMismatch, ReasonTypeNotAssignable},
		{"named converter", NewCatalog().NamedConverter("", Conv(parseCelsius(""))), ErrNullArgument, ReasonNullArgument},
		{"enum on string", NewCatalog().Enum(reflect.TypeFor[string](), map[string]int64{"a": 1}), ErrInvalidTargetShape, ReasonUnsupportedTargetType},
		{"enum empty", NewCatalog().Enum(reflect.TypeFor[level](), nil), ErrNullArgument, ReasonNullArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cat.Err()
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestCatalog_InvalidConstructors(t *testing.T) {
	tests := []struct {
		name   string
		fn     any
		params []ParamSpec
	}{
		{"not a function", 42, nil},
		{"nil function", (func() point)(nil), nil},
		{"variadic", func(xs ...int) point { return point{} }, []ParamSpec{Param("xs")}},
		{"no result", func() {}, nil},
		{"second result not error", func() (point, int) { return point{}, 0 }, nil},
		{"result not struct", func() int { return 0 }, nil},
		{"param count", func(x, y int) point { return point{} }, []ParamSpec{Param("x")}},
		{"empty name", func(x int) point { return point{} }, []ParamSpec{Param("")}},
		{"duplicate name", func(x, y int) point { return point{} }, []ParamSpec{Param("x"), Param("X")}},
		{"bad default", func(x int) point { return point{} }, []ParamSpec{Param("x").Default("seven")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCatalog().Constructor(tt.fn, tt.params...).Err()
			assert.ErrorIs(t, err, ErrInvalidTargetShape)
			assert.Equal(t, ReasonInvalidConstructor, ReasonOf(err))
		})
	}

	assert.ErrorIs(t, NewCatalog().Constructor(nil).Err(), ErrNullArgument)
}

func TestCatalog_ConcurrentBind(t *testing.T) {
	cat := shapeCatalog().Default(shapeType, reflect.TypeFor[circle]())
	sec := sectionOf(t, "main:\n  radius: 2\nextra: [{type: rect, w: 1, h: 1}]")

	var g errgroup.Group
	var mu sync.Mutex
	results := make([]canvas, 0, 16)
	for range 16 {
		g.Go(func() error {
			got, err := Bind[canvas](sec, WithCatalog(cat))
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, got)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, got := range results {
		assert.Equal(t, circle{Radius: 2}, got.Main)
	}
}
