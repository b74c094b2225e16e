package schema

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const (
	constChar   = "="
	commentChar = "#"
	srvDelim    = "---"
)

// headerShortName/headerFullName implement the `Header` -> `std_msgs/Header`
// aliasing rule from spec.md §4.2.
const (
	headerShortName = "Header"
	headerFullName  = "std_msgs/Header"
)

var legalFieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ParseMessage parses the text of a single .msg file into a MessageSpec.
// fullName is "package/Name"; pkg is taken from it. The returned spec is
// unresolved: message-reference fields only carry the name the source used,
// not a verified dependency.
func ParseMessage(fullName, text string) (*MessageSpec, error) {
	pkg, name := splitFullName(fullName)

	var fields []Field
	var constants []Constant
	seen := make(map[string]bool)

	for lineno, rawLine := range strings.Split(text, "\n") {
		line := stripComment(rawLine)
		if len(line) == 0 {
			continue
		}
		if isConstantLine(line) {
			c, err := parseConstantLine(rawLine)
			if err != nil {
				return nil, newParseError(fullName, lineno+1, err.Error())
			}
			constants = append(constants, *c)
			continue
		}
		f, err := parseFieldLine(rawLine, pkg)
		if err != nil {
			return nil, newParseError(fullName, lineno+1, err.Error())
		}
		if seen[f.Name] {
			return nil, newParseError(fullName, lineno+1, "duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
		fields = append(fields, *f)
	}

	return &MessageSpec{
		Package:    pkg,
		Name:       name,
		Fields:     fields,
		Constants:  constants,
		SourceText: text,
	}, nil
}

// ParseService parses the text of a single .srv file ("request fields ---
// response fields") into a ServiceSpec, naming the synthetic request and
// response messages per spec.md §3.
func ParseService(fullName, text string) (*ServiceSpec, error) {
	pkg, name := splitFullName(fullName)

	parts := strings.SplitN(text, srvDelim, 2)
	if len(parts) != 2 {
		return nil, newParseError(fullName, 0, "missing %q separator line", srvDelim)
	}

	reqName := pkg + "/" + requestName(name)
	resName := pkg + "/" + responseName(name)

	reqSpec, err := ParseMessage(reqName, parts[0])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing request half of %s", fullName)
	}
	resSpec, err := ParseMessage(resName, parts[1])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing response half of %s", fullName)
	}

	return &ServiceSpec{
		Package:  pkg,
		Name:     name,
		Request:  reqSpec,
		Response: resSpec,
	}, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, commentChar[0]); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func isConstantLine(cleanLine string) bool {
	// A field line never contains '=' (field names can't contain it); a
	// constant line always does, following gengo/parser.go's discriminant.
	return strings.Contains(cleanLine, constChar)
}

func parseConstantLine(rawLine string) (*Constant, error) {
	clean := stripComment(rawLine)
	sep := strings.IndexFunc(clean, unicode.IsSpace)
	if sep < 0 {
		return nil, errors.New("could not find a constant name after the type name")
	}
	typeName := clean[:sep]
	prim, ok := canonicalPrimitive(typeName)
	if !ok {
		return nil, errors.Errorf("%q is not a legal constant type", typeName)
	}

	var name, literal string
	if typeName == "string" {
		// String constants take everything after '=' verbatim, comments
		// included, matching gengo/parser.go's loadConstantLine.
		sep = strings.IndexFunc(rawLine, unicode.IsSpace)
		if sep < 0 {
			return nil, errors.New("could not find a constant name after the type name")
		}
		rest := rawLine[sep:]
		kv := strings.SplitN(rest, constChar, 2)
		if len(kv) != 2 {
			return nil, errors.New("a constant definition requires its value")
		}
		name = strings.TrimSpace(kv[0])
		literal = strings.TrimLeftFunc(kv[1], unicode.IsSpace)
		if literal == "" {
			return nil, errors.New("unterminated string constant")
		}
	} else {
		rest := strings.TrimSpace(clean[sep:])
		kv := strings.SplitN(rest, constChar, 2)
		if len(kv) != 2 {
			return nil, errors.New("a constant definition requires its value")
		}
		name = strings.TrimSpace(kv[0])
		literal = strings.TrimSpace(kv[1])
	}

	if !legalFieldName.MatchString(name) {
		return nil, errors.Errorf("%q is not a legal constant name", name)
	}
	if err := validateConstantLiteral(prim, literal); err != nil {
		return nil, err
	}

	return &Constant{Name: name, Kind: prim, Literal: literal}, nil
}

func validateConstantLiteral(prim Primitive, literal string) error {
	switch prim {
	case Float32:
		_, err := strconv.ParseFloat(literal, 32)
		return err
	case Float64:
		_, err := strconv.ParseFloat(literal, 64)
		return err
	case Int8, Int16, Int32, Int64:
		_, err := strconv.ParseInt(literal, 0, bitSize(prim))
		return err
	case Uint8, Uint16, Uint32, Uint64:
		_, err := strconv.ParseUint(literal, 0, bitSize(prim))
		return err
	case Bool:
		switch literal {
		case "0", "1", "true", "false", "True", "False":
			return nil
		default:
			return errors.Errorf("invalid bool constant literal %q", literal)
		}
	case String:
		return nil
	default:
		return errors.Errorf("%q is not a legal constant type", prim)
	}
}

func bitSize(p Primitive) int {
	switch p {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	default:
		return 64
	}
}

func parseFieldLine(rawLine string, pkg string) (*Field, error) {
	clean := stripComment(rawLine)
	parts := strings.SplitN(clean, " ", 2)
	if len(parts) != 2 {
		// Fields may also be separated by arbitrary whitespace; fall back
		// to a whitespace-function split if the naive single-space split
		// didn't find two tokens (e.g. tabs between type and name).
		parts = strings.FieldsFunc(clean, unicode.IsSpace)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid field declaration: %q", rawLine)
		}
	}
	typeLiteral := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])

	if !legalFieldName.MatchString(name) {
		return nil, errors.Errorf("%q is not a legal message field name", name)
	}

	base, arr, err := parseArraySuffix(typeLiteral)
	if err != nil {
		return nil, err
	}

	resolvedLiteral := base
	if base == headerShortName {
		resolvedLiteral = headerFullName
	} else if !IsPrimitive(base) && !strings.Contains(base, "/") && pkg != "" {
		resolvedLiteral = pkg + "/" + base
	}

	kind, err := buildType(resolvedLiteral)
	if err != nil {
		return nil, err
	}
	if arr.Dynamic || arr.Fixed {
		if !kind.IsPrimitive() {
			// Arrays of message types are fine; arrays of arrays are not
			// representable by this grammar at all (no second '[' survives
			// parseArraySuffix), so there is nothing further to reject here.
		}
	}

	return &Field{Name: name, Kind: kind, Array: arr, Literal: base}, nil
}

// parseArraySuffix splits "type[N]"/"type[]"/"type" into the base type and
// its Array descriptor, rejecting malformed, zero, or negative fixed sizes.
func parseArraySuffix(typeLiteral string) (string, Array, error) {
	i := strings.IndexByte(typeLiteral, '[')
	if i < 0 {
		return typeLiteral, NoArray, nil
	}
	if !strings.HasSuffix(typeLiteral, "]") {
		return "", Array{}, errors.Errorf("%q has an unterminated array suffix", typeLiteral)
	}
	base := typeLiteral[:i]
	inner := typeLiteral[i+1 : len(typeLiteral)-1]
	// Reject nested array syntax, e.g. "int32[][]" or "int32[2][3]".
	if strings.ContainsAny(inner, "[]") {
		return "", Array{}, errors.Errorf("nested arrays are not valid: %q", typeLiteral)
	}
	if inner == "" {
		return base, DynamicArray(), nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return "", Array{}, errors.Errorf("invalid fixed array size in %q", typeLiteral)
	}
	if n <= 0 {
		return "", Array{}, errors.Errorf("array size must be positive, got %d in %q", n, typeLiteral)
	}
	return base, FixedArray(n), nil
}

func buildType(literal string) (Type, error) {
	if prim, ok := canonicalPrimitive(literal); ok {
		return Type{Prim: prim}, nil
	}
	pkg, name := splitFullName(literal)
	if name == "" {
		return Type{}, errors.Errorf("empty type name")
	}
	return Type{Pkg: pkg, Name: name}, nil
}
