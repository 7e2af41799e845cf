package chunker

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageSpec describes how symbols appear in one language's grammar.
type LanguageSpec struct {
	Name string

	// FunctionTypes are node types of standalone functions.
	FunctionTypes []string

	// ClassTypes are node types of class-like containers.
	ClassTypes []string

	// MethodTypes are node types of methods declared outside class
	// bodies (Go receivers); languages nesting methods inside class
	// bodies leave this empty.
	MethodTypes []string

	// DecoratorType wraps decorated definitions (Python).
	DecoratorType string

	// ParameterTypes are node types of parameter lists.
	ParameterTypes []string

	// NameTypes are node types carrying a symbol's identifier.
	NameTypes []string

	// BodyType is the node type of a class body, searched for methods.
	BodyType string
}

// LanguageRegistry maps languages to grammars and specs. Languages are
// added by registration; files in unregistered languages degrade to
// whole-file chunks.
type LanguageRegistry struct {
	mu       sync.RWMutex
	specs    map[string]*LanguageSpec
	grammars map[string]*sitter.Language
}

// NewLanguageRegistry returns a registry with the default languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		specs:    make(map[string]*LanguageSpec),
		grammars: make(map[string]*sitter.Language),
	}

	r.Register(&LanguageSpec{
		Name:           "go",
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_declaration"},
		ClassTypes:     []string{"type_declaration"},
		ParameterTypes: []string{"parameter_list"},
		NameTypes:      []string{"identifier", "field_identifier", "type_identifier"},
	}, golang.GetLanguage())

	r.Register(&LanguageSpec{
		Name:           "python",
		FunctionTypes:  []string{"function_definition"},
		ClassTypes:     []string{"class_definition"},
		DecoratorType:  "decorated_definition",
		ParameterTypes: []string{"parameters"},
		NameTypes:      []string{"identifier"},
		BodyType:       "block",
	}, python.GetLanguage())

	jsSpec := &LanguageSpec{
		Name:           "javascript",
		FunctionTypes:  []string{"function_declaration", "generator_function_declaration"},
		ClassTypes:     []string{"class_declaration"},
		ParameterTypes: []string{"formal_parameters"},
		NameTypes:      []string{"identifier"},
		BodyType:       "class_body",
	}
	r.Register(jsSpec, javascript.GetLanguage())

	tsSpec := &LanguageSpec{
		Name:           "typescript",
		FunctionTypes:  []string{"function_declaration", "generator_function_declaration"},
		ClassTypes:     []string{"class_declaration"},
		ParameterTypes: []string{"formal_parameters"},
		NameTypes:      []string{"identifier", "type_identifier"},
		BodyType:       "class_body",
	}
	r.Register(tsSpec, typescript.GetLanguage())

	tsxSpec := *tsSpec
	tsxSpec.Name = "tsx"
	r.Register(&tsxSpec, tsx.GetLanguage())

	return r
}

// Register adds or replaces a language.
func (r *LanguageRegistry) Register(spec *LanguageSpec, grammar *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	r.grammars[spec.Name] = grammar
}

// Spec returns the language spec by name.
func (r *LanguageRegistry) Spec(name string) (*LanguageSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Grammar returns the tree-sitter grammar by language name.
func (r *LanguageRegistry) Grammar(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[name]
	return g, ok
}

// Supported reports whether a language has a registered parser.
func (r *LanguageRegistry) Supported(name string) bool {
	_, ok := r.Grammar(name)
	return ok
}

func (s *LanguageSpec) isFunction(nodeType string) bool {
	for _, t := range s.FunctionTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (s *LanguageSpec) isClass(nodeType string) bool {
	for _, t := range s.ClassTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (s *LanguageSpec) isMethod(nodeType string) bool {
	for _, t := range s.MethodTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (s *LanguageSpec) isName(nodeType string) bool {
	for _, t := range s.NameTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (s *LanguageSpec) isParameters(nodeType string) bool {
	for _, t := range s.ParameterTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
