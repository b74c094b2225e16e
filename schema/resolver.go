package schema

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// visitState tracks a node's progress through the resolver's DFS, used to
// detect dependency cycles during topological ordering (spec.md §4.2).
type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// Registry resolves message and service names against a caller-supplied set
// of (package, root directory) search entries. Unlike the teacher's
// libgengo.MsgContext, which discovers ROS packages by walking directories
// looking for package.xml (FindAllMessages/isRosPackage), the Registry here
// never walks the filesystem on its own: spec.md §1 places "file discovery
// (package directory walking)" out of scope, so package roots must be
// registered explicitly.
type Registry struct {
	roots map[string]string // package name -> root directory
	msgs  map[string]*MessageSpec
	srvs  map[string]*ServiceSpec
}

// NewRegistry creates a Registry over the given package-name -> root-dir
// search entries.
func NewRegistry(roots map[string]string) *Registry {
	return &Registry{
		roots: roots,
		msgs:  make(map[string]*MessageSpec),
		srvs:  make(map[string]*ServiceSpec),
	}
}

// AddRoot registers (or overwrites) the search root for a single package.
func (r *Registry) AddRoot(pkg, rootDir string) {
	r.roots[pkg] = rootDir
}

// findMsgFile probes "<root>/<Name>.msg" then "<root>/msg/<Name>.msg", in
// that order, per spec.md §6.
func (r *Registry) findMsgFile(pkg, name string) (string, error) {
	root, ok := r.roots[pkg]
	if !ok {
		return "", errors.Errorf("no search root registered for package %q", pkg)
	}
	candidates := []string{
		filepath.Join(root, name+".msg"),
		filepath.Join(root, "msg", name+".msg"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.Errorf("message definition %q not found under %q (tried %s)", pkg+"/"+name, root, strings.Join(candidates, ", "))
}

func (r *Registry) findSrvFile(pkg, name string) (string, error) {
	root, ok := r.roots[pkg]
	if !ok {
		return "", errors.Errorf("no search root registered for package %q", pkg)
	}
	candidates := []string{
		filepath.Join(root, name+".srv"),
		filepath.Join(root, "srv", name+".srv"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.Errorf("service definition %q not found under %q (tried %s)", pkg+"/"+name, root, strings.Join(candidates, ", "))
}

// LoadMessageText registers a MessageSpec parsed directly from text,
// bypassing filesystem lookup. Used both by tests and by callers that
// already have definitions in memory (e.g. embedded standard messages).
func (r *Registry) LoadMessageText(fullName, text string) (*MessageSpec, error) {
	spec, err := ParseMessage(fullName, text)
	if err != nil {
		return nil, err
	}
	r.msgs[fullName] = spec
	return spec, nil
}

// loadMessage returns the cached MessageSpec for fullName, parsing it from
// disk on first use.
func (r *Registry) loadMessage(fullName string) (*MessageSpec, error) {
	if spec, ok := r.msgs[fullName]; ok {
		return spec, nil
	}
	pkg, name := splitFullName(fullName)
	path, err := r.findMsgFile(pkg, name)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	spec, err := ParseMessage(fullName, string(text))
	if err != nil {
		return nil, err
	}
	r.msgs[fullName] = spec
	return spec, nil
}

// loadService returns the cached ServiceSpec for fullName, parsing it from
// disk on first use, and registers its Request/Response halves as ordinary
// messages so the fingerprint and topo-sort machinery treats them
// uniformly.
func (r *Registry) loadService(fullName string) (*ServiceSpec, error) {
	if spec, ok := r.srvs[fullName]; ok {
		return spec, nil
	}
	pkg, name := splitFullName(fullName)
	path, err := r.findSrvFile(pkg, name)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	spec, err := ParseService(fullName, string(text))
	if err != nil {
		return nil, err
	}
	r.msgs[spec.Request.FullName()] = spec.Request
	r.msgs[spec.Response.FullName()] = spec.Response
	r.srvs[fullName] = spec
	return spec, nil
}

// resolveFieldRef turns a field's Type into the fully-qualified message name
// it names, applying the "bare name resolves against the enclosing package"
// rule from spec.md §4.2.
func resolveFieldRef(t Type, enclosingPkg string) string {
	if t.Pkg != "" {
		return t.Pkg + "/" + t.Name
	}
	return enclosingPkg + "/" + t.Name
}

// Resolve loads every MessageSpec and ServiceSpec transitively referenced by
// entryPoints (each a "pkg/Name" message or service full name) and returns
// the MessageSpecs in topological order: every referenced spec precedes its
// referents, as required for fingerprint computation (spec.md §4.2, §4.3).
//
// entryPoints may name messages or services interchangeably; the resolver
// tries a service lookup first (services are never referenced as a field
// type, so there's no ambiguity) and falls back to a message lookup.
func (r *Registry) Resolve(entryPoints []string) ([]*MessageSpec, error) {
	state := make(map[string]visitState)
	var order []*MessageSpec
	var stack []string

	var visit func(fullName string) error
	visit = func(fullName string) error {
		switch state[fullName] {
		case visited:
			return nil
		case visiting:
			cycle := append(append([]string{}, stack...), fullName)
			return newCycleError(cycle)
		}
		state[fullName] = visiting
		stack = append(stack, fullName)

		spec, err := r.loadMessage(fullName)
		if err != nil {
			return err
		}
		for _, f := range spec.Fields {
			if f.Kind.IsPrimitive() {
				continue
			}
			dep := resolveFieldRef(f.Kind, spec.Package)
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[fullName] = visited
		order = append(order, spec)
		return nil
	}

	for _, entry := range entryPoints {
		if srv, err := r.loadService(entry); err == nil {
			if err := visit(srv.Request.FullName()); err != nil {
				return nil, err
			}
			if err := visit(srv.Response.FullName()); err != nil {
				return nil, err
			}
			continue
		}
		if err := visit(entry); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ResolveService resolves a single service by full name, returning its
// ServiceSpec along with the topologically ordered transitive dependency
// set of both halves.
func (r *Registry) ResolveService(fullName string) (*ServiceSpec, []*MessageSpec, error) {
	srv, err := r.loadService(fullName)
	if err != nil {
		return nil, nil, err
	}
	order, err := r.Resolve([]string{srv.Request.FullName(), srv.Response.FullName()})
	if err != nil {
		return nil, nil, err
	}
	return srv, order, nil
}
