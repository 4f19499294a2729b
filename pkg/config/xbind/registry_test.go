package xbind

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeRegistry(t *testing.T) {
	rectPtr := reflect.TypeFor[*rect]()

	tests := []struct {
		name   string
		build  func() (*TypeRegistry, error)
		kind   error
		reason string
	}{
		{
			name:   "abstract",
			build:  NewTypeRegistry().For(shapeType, shapeType).Build,
			kind:   ErrTypeMismatch,
			reason: ReasonCannotCreateAbstractType,
		},
		{
			name:   "any",
			build:  NewTypeRegistry().For(shapeType, reflect.TypeFor[any]()).Build,
			kind:   ErrTypeMismatch,
			reason: ReasonCannotCreateObjectType,
		},
		{
			name:   "not assignable",
			build:  NewTypeRegistry().For(shapeType, reflect.TypeFor[rect]()).Build,
			kind:   ErrTypeMismatch,
			reason: ReasonTypeNotAssignable,
		},
		{
			name:   "nil",
			build:  NewTypeRegistry().For(nil, rectPtr).Build,
			kind:   ErrNullArgument,
			reason: ReasonNullArgument,
		},
		{
			name:   "member not assignable",
			build:  NewTypeRegistry().ForMember(canvasType, "Main", reflect.TypeFor[label]()).Build,
			kind:   ErrTypeMismatch,
			reason: ReasonTypeNotAssignable,
		},
		{
			name:   "member abstract",
			build:  NewTypeRegistry().ForMember(canvasType, "Main", shapeType).Build,
			kind:   ErrTypeMismatch,
			reason: ReasonCannotCreateAbstractType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := tt.build()
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestTypeRegistry_Build(t *testing.T) {
	rectPtr := reflect.TypeFor[*rect]()
	b := NewTypeRegistry().
		For(shapeType, rectPtr).
		ForMember(canvasType, "extra", reflect.TypeFor[circle]()).
		ForMember(canvasType, "ctorParam", rectPtr)

	reg, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, rectPtr, reg.target(shapeType))
	assert.Equal(t, reflect.TypeFor[circle](), reg.member(canvasType, "Extra"))
	assert.Equal(t, reflect.TypeFor[circle](), reg.member(reflect.TypeFor[*canvas](), "extra"))
	assert.Equal(t, rectPtr, reg.member(canvasType, "ctor-param"))

	// 构建后继续注册不影响已构建的注册表
	b.For(reflect.TypeFor[clock](), reflect.TypeFor[fixedClock]())
	assert.Nil(t, reg.target(reflect.TypeFor[clock]()))

	var nilReg *TypeRegistry
	assert.Nil(t, nilReg.target(shapeType))
	assert.Nil(t, nilReg.member(canvasType, "main"))

	assert.Panics(t, func() { NewTypeRegistry().For(nil, nil).MustBuild() })
}

func TestConverterRegistry(t *testing.T) {
	celsiusType := reflect.TypeFor[celsius]()
	conv := Conv(parseCelsius(""))

	reg, err := NewConverterRegistry().
		For(celsiusType, conv).
		ForMember(reflect.TypeFor[struct{ Temps []celsius }](), "temps", conv).
		Build()
	require.NoError(t, err)
	_, ok := reg.target(celsiusType)
	assert.True(t, ok)

	_, err = NewConverterRegistry().For(reflect.TypeFor[int](), conv).Build()
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewConverterRegistry().For(celsiusType, Converter{}).Build()
	assert.ErrorIs(t, err, ErrNullArgument)

	_, err = NewConverterRegistry().ForMember(reflect.TypeFor[limits](), "burst", conv).Build()
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewConverterRegistry().ForMember(nil, "burst", conv).Build()
	assert.ErrorIs(t, err, ErrNullArgument)

	assert.Panics(t, func() { NewConverterRegistry().For(nil, conv).MustBuild() })

	var nilReg *ConverterRegistry
	_, ok = nilReg.target(celsiusType)
	assert.False(t, ok)
}

func TestConverter(t *testing.T) {
	c := Conv(parseCelsius(""))
	assert.Equal(t, reflect.TypeFor[celsius](), c.Out())
	assert.True(t, c.valid())

	assert.False(t, Conv[int](nil).valid())
	assert.False(t, ConvFunc(nil, func(string) (any, error) { return nil, nil }).valid())
}
