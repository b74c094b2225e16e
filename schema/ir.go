// Package schema parses ROS .msg/.srv text into a language-neutral IR,
// resolves cross-package references, and computes the canonical ROS MD5
// fingerprint of a message or service.
package schema

import (
	"fmt"
	"strings"
)

// Primitive is one of the built-in ROS field/constant types.
type Primitive string

const (
	Bool     Primitive = "bool"
	Int8     Primitive = "int8"
	Int16    Primitive = "int16"
	Int32    Primitive = "int32"
	Int64    Primitive = "int64"
	Uint8    Primitive = "uint8"
	Uint16   Primitive = "uint16"
	Uint32   Primitive = "uint32"
	Uint64   Primitive = "uint64"
	Float32  Primitive = "float32"
	Float64  Primitive = "float64"
	String   Primitive = "string"
	TimeType Primitive = "time"
	DurType  Primitive = "duration"
)

// primitiveTypes lists every legal constant/field primitive, including the
// deprecated ROS1 aliases still found in real .msg trees (roslibrust_codegen
// carries the same two aliases in its integral type table).
var primitiveTypes = map[string]Primitive{
	"bool":     Bool,
	"int8":     Int8,
	"int16":    Int16,
	"int32":    Int32,
	"int64":    Int64,
	"uint8":    Uint8,
	"uint16":   Uint16,
	"uint32":   Uint32,
	"uint64":   Uint64,
	"float32":  Float32,
	"float64":  Float64,
	"string":   String,
	"time":     TimeType,
	"duration": DurType,
	// deprecated ROS1 aliases
	"char": Uint8,
	"byte": Uint8,
}

// IsPrimitive reports whether name names a built-in scalar type.
func IsPrimitive(name string) bool {
	_, ok := primitiveTypes[name]
	return ok
}

// canonicalPrimitive maps a primitive name (including deprecated aliases) to
// its canonical Primitive constant, as used by the field/constant type line
// in the type column, but NOT in the fingerprint text (fingerprint text uses
// the literal spelling from the source, per ComputeMD5).
func canonicalPrimitive(name string) (Primitive, bool) {
	p, ok := primitiveTypes[name]
	return p, ok
}

// Array describes whether a field is scalar, a dynamic-length array, or a
// fixed-length array.
type Array struct {
	Dynamic bool
	Fixed   bool
	Len     int
}

// NoArray is the zero value: a scalar field.
var NoArray = Array{}

// DynamicArray returns the Array value for a `[]`-suffixed field.
func DynamicArray() Array { return Array{Dynamic: true} }

// FixedArray returns the Array value for a `[N]`-suffixed field.
func FixedArray(n int) Array { return Array{Fixed: true, Len: n} }

func (a Array) String() string {
	switch {
	case a.Fixed:
		return fmt.Sprintf("[%d]", a.Len)
	case a.Dynamic:
		return "[]"
	default:
		return ""
	}
}

// Type is either a Primitive or a reference to another package's message.
type Type struct {
	// Prim is set (Pkg/Name empty) when this is a primitive type.
	Prim Primitive
	// Pkg/Name are set (Prim empty) when this is a Message(pkg,name) reference.
	Pkg  string
	Name string
}

// IsPrimitive reports whether t names a built-in scalar type rather than a
// message reference.
func (t Type) IsPrimitive() bool {
	return t.Pkg == "" && t.Name == "" && t.Prim != ""
}

// FullName returns "pkg/Name" for a message-reference type, or the bare
// primitive name otherwise.
func (t Type) FullName() string {
	if t.IsPrimitive() {
		return string(t.Prim)
	}
	return t.Pkg + "/" + t.Name
}

func (t Type) String() string { return t.FullName() }

// Field is one field declaration inside a MessageSpec.
type Field struct {
	Name  string
	Kind  Type
	Array Array
	// Literal is the exact type spelling as written in the source file
	// (e.g. "byte" rather than the canonicalized "uint8"), preserved because
	// the fingerprint text must reproduce the source's own spelling for
	// primitive fields.
	Literal string
}

// Constant is one `<type> <NAME> = <literal>` declaration.
type Constant struct {
	Name    string
	Kind    Primitive
	Literal string
}

// MessageSpec is the parsed, but not yet resolved, IR of a single .msg
// file (or one half of a .srv file).
type MessageSpec struct {
	Package    string
	Name       string
	Fields     []Field
	Constants  []Constant
	SourceText string
}

// FullName returns "Package/Name".
func (m *MessageSpec) FullName() string {
	return m.Package + "/" + m.Name
}

// FieldNames returns the ordered list of field names, useful for detecting
// duplicates and for stable code-generation ordering.
func (m *MessageSpec) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// ServiceSpec is the parsed IR of a .srv file: a named pair of message
// bodies whose synthetic package/name follow the naming rule in spec.md §3.
type ServiceSpec struct {
	Package  string
	Name     string
	Request  *MessageSpec
	Response *MessageSpec
}

// FullName returns "Package/Name".
func (s *ServiceSpec) FullName() string {
	return s.Package + "/" + s.Name
}

// requestName/responseName implement the "<ServiceName>Request" /
// "<ServiceName>Response" naming invariant from spec.md §3.
func requestName(serviceName string) string  { return serviceName + "Request" }
func responseName(serviceName string) string { return serviceName + "Response" }

// splitFullName splits "pkg/Name" into ("pkg", "Name"); a bare name with no
// slash returns ("", name).
func splitFullName(full string) (pkg, name string) {
	if i := strings.IndexByte(full, '/'); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}
