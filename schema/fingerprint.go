package schema

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// MD5Text renders the canonical text defined in spec.md §3: one line per
// constant ("<type> <name>=<literal>"), one line per primitive field
// ("<type> <name>"), and one line per message-reference field ("<md5>
// <name>"), arrays suffixed "[]"/"[N]" after the type, lines '\n'-joined
// with no trailing newline.
//
// depMD5 must contain, by full name, the already computed MD5 of every
// message type that spec's fields reference — i.e. dependencies must be
// processed first, in the topological order Registry.Resolve returns.
func MD5Text(spec *MessageSpec, depMD5 map[string]string) (string, error) {
	var lines []string

	for _, c := range spec.Constants {
		lines = append(lines, string(c.Kind)+" "+c.Name+"="+c.Literal)
	}

	for _, f := range spec.Fields {
		suffix := f.Array.String()
		if f.Kind.IsPrimitive() {
			lines = append(lines, f.Literal+suffix+" "+f.Name)
			continue
		}
		fullName := resolveFieldRef(f.Kind, spec.Package)
		sum, ok := depMD5[fullName]
		if !ok {
			return "", errors.Errorf("no precomputed md5 for dependency %q of %q", fullName, spec.FullName())
		}
		lines = append(lines, sum+suffix+" "+f.Name)
	}

	return strings.Join(lines, "\n"), nil
}

// MD5Sum computes the 32-character lowercase hex MD5 fingerprint of spec,
// given the precomputed dependency sums (see MD5Text).
func MD5Sum(spec *MessageSpec, depMD5 map[string]string) (string, error) {
	text, err := MD5Text(spec, depMD5)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprints computes the MD5 of every spec in order (which must already
// be a valid topological ordering — dependencies before dependents, e.g. the
// output of Registry.Resolve), returning a full-name -> md5 map covering the
// whole set.
func Fingerprints(order []*MessageSpec) (map[string]string, error) {
	sums := make(map[string]string, len(order))
	for _, spec := range order {
		sum, err := MD5Sum(spec, sums)
		if err != nil {
			return nil, err
		}
		sums[spec.FullName()] = sum
	}
	return sums, nil
}

// ServiceMD5Sum computes a service's MD5: the MD5 of the concatenation of
// the request's canonical text and the response's canonical text (spec.md
// §4.3 / ComputeSrvMD5 in libgengo/context.go).
func ServiceMD5Sum(srv *ServiceSpec, depMD5 map[string]string) (string, error) {
	reqText, err := MD5Text(srv.Request, depMD5)
	if err != nil {
		return "", err
	}
	resText, err := MD5Text(srv.Response, depMD5)
	if err != nil {
		return "", err
	}
	h := md5.New()
	h.Write([]byte(reqText))
	h.Write([]byte(resText))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResolveAndFingerprint is a convenience that resolves fullName's transitive
// dependency set from reg and returns its MD5, along with the full dependency
// sum map (useful for debugging mismatches against a reference generator).
func ResolveAndFingerprint(reg *Registry, fullName string) (string, map[string]string, error) {
	order, err := reg.Resolve([]string{fullName})
	if err != nil {
		return "", nil, err
	}
	sums, err := Fingerprints(order)
	if err != nil {
		return "", nil, err
	}
	sum, ok := sums[fullName]
	if !ok {
		return "", nil, errors.Errorf("internal error: %q missing from its own fingerprint set", fullName)
	}
	return sum, sums, nil
}
