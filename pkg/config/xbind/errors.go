package xbind

import (
	"errors"
	"reflect"
	"strings"
)

// 错误类别。BindError 通过 errors.Is 匹配其中之一。
var (
	// ErrNullArgument 必需的输入（配置节点、目标类型、注册参数）为空。
	ErrNullArgument = errors.New("xbind: null argument")

	// ErrInvalidTargetShape 目标类型是抽象类型、any 或不支持的集合类型。
	ErrInvalidTargetShape = errors.New("xbind: invalid target shape")

	// ErrTypeMismatch 类型提示或注册的默认类型不能赋值给目标类型。
	ErrTypeMismatch = errors.New("xbind: type mismatch")

	// ErrShapeMismatch 配置节点的形态（叶子/列表/映射）与目标类型不符。
	ErrShapeMismatch = errors.New("xbind: shape mismatch")

	// ErrConversionFailure 叶子值转换失败。
	ErrConversionFailure = errors.New("xbind: conversion failure")

	// ErrConstructorResolution 找不到可调用的构造函数或构造函数执行失败。
	ErrConstructorResolution = errors.New("xbind: constructor resolution failure")

	// ErrInconsistentMetadata 共享同一配置键的成员声明了互相冲突的元数据。
	ErrInconsistentMetadata = errors.New("xbind: inconsistent metadata")

	// ErrCatalogFrozen Catalog 已冻结，不再接受注册。
	ErrCatalogFrozen = errors.New("xbind: catalog is frozen")
)

// 失败原因，写入 BindError.Reason。
const (
	ReasonNullArgument                     = "NullArgument"
	ReasonCannotCreateAbstractType         = "CannotCreateAbstractType"
	ReasonCannotCreateObjectType           = "CannotCreateObjectType"
	ReasonUnsupportedCollectionType        = "UnsupportedCollectionType"
	ReasonUnsupportedTargetType            = "UnsupportedTargetType"
	ReasonTypeNotAssignable                = "TypeNotAssignable"
	ReasonUnknownTypeName                  = "UnknownTypeName"
	ReasonDuplicateTypeName                = "DuplicateTypeName"
	ReasonTargetTypeRequiresValue          = "TargetTypeRequiresConfigurationValue"
	ReasonTargetTypeRequiresSection        = "TargetTypeRequiresConfigurationSection"
	ReasonConfigurationIsAList             = "ConfigurationIsAList"
	ReasonConfigurationIsNotAList          = "ConfigurationIsNotAList"
	ReasonArrayRankNotSupported            = "ArrayRankGreaterThanOneIsNotSupported"
	ReasonTooManyElements                  = "TooManyElements"
	ReasonResultCannotBeNull               = "ResultCannotBeNull"
	ReasonConversionFailed                 = "ConversionFailed"
	ReasonNoPublicConstructorsFound        = "NoPublicConstructorsFound"
	ReasonMissingRequiredConstructorParams = "MissingRequiredConstructorParameters"
	ReasonConstructorFailed                = "ConstructorFailed"
	ReasonInvalidConstructor               = "InvalidConstructor"
	ReasonConflictingDefaultTypes          = "ConflictingDefaultTypes"
	ReasonCatalogFrozen                    = "CatalogFrozen"
)

// BindError 描述一次绑定或注册失败。
//
// Kind 是上面的错误类别之一，Reason 给出具体原因；
// Path 是出错节点的配置路径（注册期错误为空），
// Expected/Attempted 分别是要求的类型和尝试使用的类型。
type BindError struct {
	Kind      error
	Reason    string
	Path      string
	Expected  reflect.Type
	Attempted reflect.Type
	Detail    string
	Err       error
}

// Error 实现 error 接口。
func (e *BindError) Error() string {
	var sb strings.Builder
	sb.WriteString("xbind: ")
	sb.WriteString(e.Reason)
	if e.Path != "" {
		sb.WriteString(" at ")
		sb.WriteString(`"` + e.Path + `"`)
	}
	if e.Expected != nil || e.Attempted != nil {
		sb.WriteString(" (")
		if e.Expected != nil {
			sb.WriteString("expected ")
			sb.WriteString(e.Expected.String())
		}
		if e.Attempted != nil {
			if e.Expected != nil {
				sb.WriteString(", ")
			}
			sb.WriteString("attempted ")
			sb.WriteString(e.Attempted.String())
		}
		sb.WriteString(")")
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Is 使 errors.Is(err, ErrShapeMismatch) 等类别判断成立。
func (e *BindError) Is(target error) bool {
	return target != nil && target == e.Kind
}

// Unwrap 返回底层原因（如转换函数或构造函数返回的错误）。
func (e *BindError) Unwrap() error {
	return e.Err
}

// ReasonOf 返回 err 链中第一个 BindError 的 Reason，没有时返回空字符串。
func ReasonOf(err error) string {
	var be *BindError
	if errors.As(err, &be) {
		return be.Reason
	}
	return ""
}

func newError(kind error, reason, path string) *BindError {
	return &BindError{Kind: kind, Reason: reason, Path: path}
}

func (e *BindError) expect(expected, attempted reflect.Type) *BindError {
	e.Expected = expected
	e.Attempted = attempted
	return e
}

func (e *BindError) detail(s string) *BindError {
	e.Detail = s
	return e
}

func (e *BindError) wrap(err error) *BindError {
	e.Err = err
	return e
}
