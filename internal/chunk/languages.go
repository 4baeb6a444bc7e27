package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how a language's AST maps onto chunk boundaries.
type LanguageConfig struct {
	// Name is the language identifier (e.g. "go", "python").
	Name string

	// Extensions are file extensions without the dot (e.g. "go", "py").
	Extensions []string

	// SymbolTypes are top-level node types that start a new declaration.
	// A doc comment immediately before one of these stays attached to it.
	SymbolTypes []string

	// CommentTypes are node types for comments.
	CommentTypes []string

	symbolSet  map[string]bool
	commentSet map[string]bool
}

// IsSymbol reports whether nodeType is a declaration boundary.
func (c *LanguageConfig) IsSymbol(nodeType string) bool {
	return c.symbolSet[nodeType]
}

// IsComment reports whether nodeType is a comment.
func (c *LanguageConfig) IsComment(nodeType string) bool {
	return c.commentSet[nodeType]
}

// LanguageRegistry manages language configurations.
type LanguageRegistry struct {
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with all supported languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()

	return r
}

// Get returns the configuration for a language.
func (r *LanguageRegistry) Get(language string) (*LanguageConfig, bool) {
	config, ok := r.configs[language]
	return config, ok
}

// GetByExtension returns the configuration for a file extension.
// The extension may include or omit the leading dot.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	lang, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	return r.Get(lang)
}

// GetTreeSitterLanguage returns the tree-sitter language for parsing.
func (r *LanguageRegistry) GetTreeSitterLanguage(language string) (*sitter.Language, bool) {
	tsLang, ok := r.tsLanguages[language]
	return tsLang, ok
}

// register adds a language configuration to the registry.
func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	config.symbolSet = make(map[string]bool, len(config.SymbolTypes))
	for _, t := range config.SymbolTypes {
		config.symbolSet[t] = true
	}
	config.commentSet = make(map[string]bool, len(config.CommentTypes))
	for _, t := range config.CommentTypes {
		config.commentSet[t] = true
	}

	r.configs[config.Name] = config
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
	r.tsLanguages[config.Name] = tsLang
}

func (r *LanguageRegistry) registerGo() {
	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{"go"},
		SymbolTypes: []string{
			"function_declaration",
			"method_declaration",
			"type_declaration",
			"const_declaration",
			"var_declaration",
		},
		CommentTypes: []string{"comment"},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	symbolTypes := []string{
		"function_declaration",
		"class_declaration",
		"interface_declaration",
		"type_alias_declaration",
		"enum_declaration",
		"lexical_declaration",
		"variable_declaration",
		"export_statement",
	}

	r.register(&LanguageConfig{
		Name:         "typescript",
		Extensions:   []string{"ts"},
		SymbolTypes:  symbolTypes,
		CommentTypes: []string{"comment"},
	}, typescript.GetLanguage())

	// TSX shares the TypeScript node types but needs its own grammar.
	r.register(&LanguageConfig{
		Name:         "tsx",
		Extensions:   []string{"tsx"},
		SymbolTypes:  symbolTypes,
		CommentTypes: []string{"comment"},
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	r.register(&LanguageConfig{
		Name:       "javascript",
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		SymbolTypes: []string{
			"function_declaration",
			"class_declaration",
			"lexical_declaration",
			"variable_declaration",
			"export_statement",
		},
		CommentTypes: []string{"comment"},
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{"py", "pyi"},
		SymbolTypes: []string{
			"function_definition",
			"class_definition",
			"decorated_definition",
		},
		CommentTypes: []string{"comment"},
	}, python.GetLanguage())
}

// defaultRegistry is the shared registry instance.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the default language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
