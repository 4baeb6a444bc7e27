package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected in a corpus.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete DocWeave configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Endpoints   EndpointsConfig   `yaml:"endpoints" json:"endpoints"`
	GitHub      GitHubConfig      `yaml:"github" json:"github"`
	Filters     FiltersConfig     `yaml:"filters" json:"filters"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	RAG         RAGConfig         `yaml:"rag" json:"rag"`
	Generation  GenerationConfig  `yaml:"generation" json:"generation"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints" json:"checkpoints"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Watch       WatchConfig       `yaml:"watch" json:"watch"`
}

// EndpointsConfig configures the OpenAI-compatible model endpoints.
// Chat and embeddings may live on the same host or different ones.
type EndpointsConfig struct {
	// LLMBaseURL is the base URL of the chat completion endpoint,
	// including the /v1 suffix (default: http://localhost:11434/v1).
	LLMBaseURL string `yaml:"llm_base_url" json:"llm_base_url"`

	// EmbeddingsBaseURL is the base URL of the embeddings endpoint.
	// Empty means "same as llm_base_url".
	EmbeddingsBaseURL string `yaml:"embeddings_base_url" json:"embeddings_base_url"`

	// ChatModel is the model id for chat completions.
	// Empty triggers discovery: the first non-embedding model listed by /v1/models.
	ChatModel string `yaml:"chat_model" json:"chat_model"`

	// EmbedModel is the model id for embeddings.
	// Empty triggers discovery: the first /v1/models id containing "embed".
	EmbedModel string `yaml:"embed_model" json:"embed_model"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `yaml:"api_key" json:"-"`

	// RequestTimeout bounds ordinary (non-chapter) LLM and embedding calls.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// GitHubConfig configures the remote corpus host.
type GitHubConfig struct {
	// APIBase is the REST API base URL (default: https://api.github.com).
	// Point at a GitHub Enterprise host to ingest from one.
	APIBase string `yaml:"api_base" json:"api_base"`

	// Token is the optional access token for rate-limit relief
	// and private repositories.
	Token string `yaml:"token" json:"-"`

	// BlobWorkers is the number of concurrent blob downloads (default: 4).
	BlobWorkers int `yaml:"blob_workers" json:"blob_workers"`

	// FetchTimeout bounds a single tree or blob request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// FiltersConfig configures corpus file filtering and ingestion budgets.
type FiltersConfig struct {
	// Extensions is the whitelist of file extensions to ingest (no dots).
	Extensions []string `yaml:"extensions" json:"extensions"`

	// IgnoredPatterns are case-insensitive regexes matched against full paths.
	IgnoredPatterns []string `yaml:"ignored_patterns" json:"ignored_patterns"`

	// MaxFiles caps the number of files per corpus (default: 100).
	MaxFiles int `yaml:"max_files" json:"max_files"`

	// MaxTotalBytes caps cumulative corpus size in characters (default: 200000).
	MaxTotalBytes int `yaml:"max_total_bytes" json:"max_total_bytes"`

	// MaxFileBytes caps a single file's size in characters (default: 200000).
	MaxFileBytes int `yaml:"max_file_bytes" json:"max_file_bytes"`
}

// ChunkingConfig configures text splitting.
type ChunkingConfig struct {
	// ChunkSizeWords is the target chunk size in words (default: 500).
	ChunkSizeWords int `yaml:"chunk_size_words" json:"chunk_size_words"`

	// OverlapWords is the minimum overlap carried between chunks (default: 100).
	OverlapWords int `yaml:"overlap_words" json:"overlap_words"`

	// CodeAware enables syntax-aware splitting for source files (opt-in).
	// When disabled, code files use the same sentence splitter as prose.
	CodeAware bool `yaml:"code_aware" json:"code_aware"`
}

// RAGConfig configures retrieval.
type RAGConfig struct {
	// TopK is the number of chunks retrieved per query (default: 5).
	TopK int `yaml:"top_k" json:"top_k"`

	// MinSimilarity is the base similarity threshold for the adaptive tier
	// (default: 0.2). Fallback tiers relax it automatically.
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`

	// MaxContextTokens is the estimated token budget for a single chat call
	// before multipart synthesis kicks in (default: 5000).
	MaxContextTokens int `yaml:"max_context_tokens" json:"max_context_tokens"`

	// CacheSize is the LRU capacity for query embeddings (default: 1000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// GenerationConfig configures outline and chapter generation.
type GenerationConfig struct {
	// MinChapters and MaxChapters bound the accepted outline size.
	// Outlines outside [min, max] are replaced with the default plan.
	MinChapters int `yaml:"min_chapters" json:"min_chapters"`
	MaxChapters int `yaml:"max_chapters" json:"max_chapters"`

	// ChapterTimeout bounds a single chapter generation call (default: 45m).
	// Large local models can be very slow on long contexts.
	ChapterTimeout time.Duration `yaml:"chapter_timeout" json:"chapter_timeout"`

	// OutlineTimeout bounds the outline planning call (default: 10m).
	OutlineTimeout time.Duration `yaml:"outline_timeout" json:"outline_timeout"`

	// PDFRendererURL is the webhook that turns merged markdown into a
	// PDF. Empty disables rendering; jobs complete without a PDF.
	PDFRendererURL string `yaml:"pdf_renderer_url" json:"pdf_renderer_url"`
}

// CheckpointsConfig configures job checkpoint persistence.
type CheckpointsConfig struct {
	// Backend selects the store: "sqlite" (default), "postgres", or "none".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database path.
	// Empty means <data_dir>/checkpoints.db.
	Path string `yaml:"path" json:"path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn" json:"-"`

	// MaxAge is the window for listing resumable jobs (default: 24h).
	// Incomplete checkpoints older than this are not offered for resume.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// StorageConfig configures where artifacts live.
type StorageConfig struct {
	// DataDir is the root directory for indexes, checkpoints, and output.
	// Empty means ~/.docweave.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CORSOrigins lists allowed origins; empty allows all.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// WatchConfig configures local-directory watch mode.
type WatchConfig struct {
	// Enabled turns on re-ingestion when watched files change (opt-in).
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Debounce is the quiet period before a rebuild fires (default: 500ms).
	Debounce string `yaml:"debounce" json:"debounce"`
}

// defaultIgnoredPatterns are always excluded from ingestion.
// Matched case-insensitively against the full file path.
var defaultIgnoredPatterns = []string{
	`node_modules`,
	`\.git`,
	`dist`,
	`build`,
	`\.next`,
	`venv`,
	`__pycache__`,
	`\.env`,
	`\.DS_Store`,
	`\.idea`,
	`\.vscode`,
	`\.pytest_cache`,
	`\.mypy_cache`,
	`\.tox`,
	`\.cache`,
}

// defaultExtensions is the ingestion whitelist.
var defaultExtensions = []string{
	"py", "js", "jsx", "ts", "tsx", "java", "kt", "dart", "go", "rs",
	"cpp", "c", "h", "cs", "html", "css", "md", "txt", "json", "yaml",
	"yml", "xml", "pdf", "doc", "docx",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Endpoints: EndpointsConfig{
			LLMBaseURL:        "http://localhost:11434/v1",
			EmbeddingsBaseURL: "", // same as llm_base_url
			ChatModel:         "", // discover from /v1/models
			EmbedModel:        "", // discover from /v1/models
			APIKey:            "",
			RequestTimeout:    2 * time.Minute,
		},
		GitHub: GitHubConfig{
			APIBase:      "https://api.github.com",
			Token:        "",
			BlobWorkers:  4,
			FetchTimeout: 60 * time.Second,
		},
		Filters: FiltersConfig{
			Extensions:      defaultExtensions,
			IgnoredPatterns: defaultIgnoredPatterns,
			MaxFiles:        100,
			MaxTotalBytes:   200_000,
			MaxFileBytes:    200_000,
		},
		Chunking: ChunkingConfig{
			ChunkSizeWords: 500,
			OverlapWords:   100,
			CodeAware:      false,
		},
		RAG: RAGConfig{
			TopK:             5,
			MinSimilarity:    0.2,
			MaxContextTokens: 5000,
			CacheSize:        1000,
		},
		Generation: GenerationConfig{
			MinChapters:    5,
			MaxChapters:    12,
			ChapterTimeout: 45 * time.Minute,
			OutlineTimeout: 10 * time.Minute,
		},
		Checkpoints: CheckpointsConfig{
			Backend: "sqlite",
			Path:    "", // <data_dir>/checkpoints.db
			MaxAge:  24 * time.Hour,
		},
		Storage: StorageConfig{
			DataDir: "", // ~/.docweave
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8765,
			LogLevel: "info",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "500ms",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.docweave).
// Falls back to temp directory if home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docweave")
	}
	return filepath.Join(home, ".docweave")
}

// ResolvedDataDir returns the configured data directory or the default.
func (c *Config) ResolvedDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DefaultDataDir()
}

// ResolvedCheckpointPath returns the SQLite checkpoint database path.
func (c *Config) ResolvedCheckpointPath() string {
	if c.Checkpoints.Path != "" {
		return c.Checkpoints.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "checkpoints.db")
}

// ResolvedEmbeddingsBaseURL returns the embeddings endpoint, falling back
// to the LLM endpoint when unset.
func (c *Config) ResolvedEmbeddingsBaseURL() string {
	if c.Endpoints.EmbeddingsBaseURL != "" {
		return c.Endpoints.EmbeddingsBaseURL
	}
	return c.Endpoints.LLMBaseURL
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/docweave/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docweave/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docweave", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback - should rarely happen
		return filepath.Join(os.TempDir(), ".config", "docweave", "config.yaml")
	}
	return filepath.Join(home, ".config", "docweave", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docweave/config.yaml)
//  3. Project config (.docweave.yaml in project root)
//  4. .env file in project root (loaded into the process environment)
//  5. Environment variables (DOCWEAVE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Load .env into the environment (best-effort; missing file is fine)
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	// Step 4: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 5: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .docweave.yaml or .docweave.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".docweave.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".docweave.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Endpoints
	if other.Endpoints.LLMBaseURL != "" {
		c.Endpoints.LLMBaseURL = other.Endpoints.LLMBaseURL
	}
	if other.Endpoints.EmbeddingsBaseURL != "" {
		c.Endpoints.EmbeddingsBaseURL = other.Endpoints.EmbeddingsBaseURL
	}
	if other.Endpoints.ChatModel != "" {
		c.Endpoints.ChatModel = other.Endpoints.ChatModel
	}
	if other.Endpoints.EmbedModel != "" {
		c.Endpoints.EmbedModel = other.Endpoints.EmbedModel
	}
	if other.Endpoints.APIKey != "" {
		c.Endpoints.APIKey = other.Endpoints.APIKey
	}
	if other.Endpoints.RequestTimeout != 0 {
		c.Endpoints.RequestTimeout = other.Endpoints.RequestTimeout
	}

	// GitHub
	if other.GitHub.APIBase != "" {
		c.GitHub.APIBase = other.GitHub.APIBase
	}
	if other.GitHub.Token != "" {
		c.GitHub.Token = other.GitHub.Token
	}
	if other.GitHub.BlobWorkers != 0 {
		c.GitHub.BlobWorkers = other.GitHub.BlobWorkers
	}
	if other.GitHub.FetchTimeout != 0 {
		c.GitHub.FetchTimeout = other.GitHub.FetchTimeout
	}

	// Filters
	if len(other.Filters.Extensions) > 0 {
		c.Filters.Extensions = other.Filters.Extensions
	}
	if len(other.Filters.IgnoredPatterns) > 0 {
		// Merge with defaults rather than replace
		c.Filters.IgnoredPatterns = append(c.Filters.IgnoredPatterns, other.Filters.IgnoredPatterns...)
	}
	if other.Filters.MaxFiles != 0 {
		c.Filters.MaxFiles = other.Filters.MaxFiles
	}
	if other.Filters.MaxTotalBytes != 0 {
		c.Filters.MaxTotalBytes = other.Filters.MaxTotalBytes
	}
	if other.Filters.MaxFileBytes != 0 {
		c.Filters.MaxFileBytes = other.Filters.MaxFileBytes
	}

	// Chunking
	if other.Chunking.ChunkSizeWords != 0 {
		c.Chunking.ChunkSizeWords = other.Chunking.ChunkSizeWords
	}
	if other.Chunking.OverlapWords != 0 {
		c.Chunking.OverlapWords = other.Chunking.OverlapWords
	}
	if other.Chunking.CodeAware {
		c.Chunking.CodeAware = true
	}

	// RAG
	if other.RAG.TopK != 0 {
		c.RAG.TopK = other.RAG.TopK
	}
	if other.RAG.MinSimilarity != 0 {
		c.RAG.MinSimilarity = other.RAG.MinSimilarity
	}
	if other.RAG.MaxContextTokens != 0 {
		c.RAG.MaxContextTokens = other.RAG.MaxContextTokens
	}
	if other.RAG.CacheSize != 0 {
		c.RAG.CacheSize = other.RAG.CacheSize
	}

	// Generation
	if other.Generation.MinChapters != 0 {
		c.Generation.MinChapters = other.Generation.MinChapters
	}
	if other.Generation.MaxChapters != 0 {
		c.Generation.MaxChapters = other.Generation.MaxChapters
	}
	if other.Generation.ChapterTimeout != 0 {
		c.Generation.ChapterTimeout = other.Generation.ChapterTimeout
	}
	if other.Generation.OutlineTimeout != 0 {
		c.Generation.OutlineTimeout = other.Generation.OutlineTimeout
	}
	if other.Generation.PDFRendererURL != "" {
		c.Generation.PDFRendererURL = other.Generation.PDFRendererURL
	}

	// Checkpoints
	if other.Checkpoints.Backend != "" {
		c.Checkpoints.Backend = other.Checkpoints.Backend
	}
	if other.Checkpoints.Path != "" {
		c.Checkpoints.Path = other.Checkpoints.Path
	}
	if other.Checkpoints.PostgresDSN != "" {
		c.Checkpoints.PostgresDSN = other.Checkpoints.PostgresDSN
	}
	if other.Checkpoints.MaxAge != 0 {
		c.Checkpoints.MaxAge = other.Checkpoints.MaxAge
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if len(other.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = other.Server.CORSOrigins
	}

	// Watch
	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

// applyEnvOverrides applies DOCWEAVE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Endpoints
	if v := os.Getenv("DOCWEAVE_LLM_BASE_URL"); v != "" {
		c.Endpoints.LLMBaseURL = v
	}
	if v := os.Getenv("DOCWEAVE_EMBEDDINGS_BASE_URL"); v != "" {
		c.Endpoints.EmbeddingsBaseURL = v
	}
	if v := os.Getenv("DOCWEAVE_CHAT_MODEL"); v != "" {
		c.Endpoints.ChatModel = v
	}
	if v := os.Getenv("DOCWEAVE_EMBED_MODEL"); v != "" {
		c.Endpoints.EmbedModel = v
	}
	if v := os.Getenv("DOCWEAVE_API_KEY"); v != "" {
		c.Endpoints.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Endpoints.APIKey == "" {
		c.Endpoints.APIKey = v
	}

	// GitHub (GITHUB_TOKEN is the conventional name; DOCWEAVE_GITHUB_TOKEN wins)
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("DOCWEAVE_GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("DOCWEAVE_GITHUB_API_BASE"); v != "" {
		c.GitHub.APIBase = v
	}

	// Filters
	if v := os.Getenv("DOCWEAVE_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Filters.MaxFiles = n
		}
	}
	if v := os.Getenv("DOCWEAVE_MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Filters.MaxTotalBytes = n
		}
	}

	// RAG
	if v := os.Getenv("DOCWEAVE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RAG.TopK = n
		}
	}
	if v := os.Getenv("DOCWEAVE_MIN_SIMILARITY"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.RAG.MinSimilarity = f
		}
	}

	// Generation
	if v := os.Getenv("DOCWEAVE_PDF_RENDERER_URL"); v != "" {
		c.Generation.PDFRendererURL = v
	}

	// Checkpoints
	if v := os.Getenv("DOCWEAVE_CHECKPOINT_BACKEND"); v != "" {
		c.Checkpoints.Backend = v
	}
	if v := os.Getenv("DOCWEAVE_POSTGRES_DSN"); v != "" {
		c.Checkpoints.PostgresDSN = v
	}

	// Storage
	if v := os.Getenv("DOCWEAVE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}

	// Server
	if v := os.Getenv("DOCWEAVE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCWEAVE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCWEAVE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}

	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}

	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or a .docweave.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".docweave.yaml")) ||
			fileExists(filepath.Join(currentDir, ".docweave.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Endpoints.LLMBaseURL == "" {
		return fmt.Errorf("endpoints.llm_base_url must not be empty")
	}

	if c.Chunking.ChunkSizeWords <= 0 {
		return fmt.Errorf("chunking.chunk_size_words must be positive, got %d", c.Chunking.ChunkSizeWords)
	}
	if c.Chunking.OverlapWords < 0 {
		return fmt.Errorf("chunking.overlap_words must be non-negative, got %d", c.Chunking.OverlapWords)
	}
	if c.Chunking.OverlapWords >= c.Chunking.ChunkSizeWords {
		return fmt.Errorf("chunking.overlap_words (%d) must be smaller than chunk_size_words (%d)",
			c.Chunking.OverlapWords, c.Chunking.ChunkSizeWords)
	}

	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.MinSimilarity < 0 || c.RAG.MinSimilarity > 1 {
		return fmt.Errorf("rag.min_similarity must be between 0 and 1, got %f", c.RAG.MinSimilarity)
	}
	if c.RAG.MaxContextTokens <= 0 {
		return fmt.Errorf("rag.max_context_tokens must be positive, got %d", c.RAG.MaxContextTokens)
	}

	if c.Filters.MaxFiles <= 0 {
		return fmt.Errorf("filters.max_files must be positive, got %d", c.Filters.MaxFiles)
	}
	if c.Filters.MaxTotalBytes <= 0 {
		return fmt.Errorf("filters.max_total_bytes must be positive, got %d", c.Filters.MaxTotalBytes)
	}

	if c.Generation.MinChapters <= 0 || c.Generation.MaxChapters < c.Generation.MinChapters {
		return fmt.Errorf("generation chapter bounds invalid: min=%d max=%d",
			c.Generation.MinChapters, c.Generation.MaxChapters)
	}

	validBackends := map[string]bool{"sqlite": true, "postgres": true, "none": true}
	if !validBackends[strings.ToLower(c.Checkpoints.Backend)] {
		return fmt.Errorf("checkpoints.backend must be 'sqlite', 'postgres', or 'none', got %s", c.Checkpoints.Backend)
	}
	if strings.ToLower(c.Checkpoints.Backend) == "postgres" && c.Checkpoints.PostgresDSN == "" {
		return fmt.Errorf("checkpoints.postgres_dsn is required when backend is 'postgres'")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.RAG.MaxContextTokens == 0 {
		c.RAG.MaxContextTokens = defaults.RAG.MaxContextTokens
		added = append(added, "rag.max_context_tokens")
	}
	if c.RAG.CacheSize == 0 {
		c.RAG.CacheSize = defaults.RAG.CacheSize
		added = append(added, "rag.cache_size")
	}

	if c.Generation.ChapterTimeout == 0 {
		c.Generation.ChapterTimeout = defaults.Generation.ChapterTimeout
		added = append(added, "generation.chapter_timeout")
	}
	if c.Generation.OutlineTimeout == 0 {
		c.Generation.OutlineTimeout = defaults.Generation.OutlineTimeout
		added = append(added, "generation.outline_timeout")
	}

	if c.Checkpoints.Backend == "" {
		c.Checkpoints.Backend = defaults.Checkpoints.Backend
		added = append(added, "checkpoints.backend")
	}
	if c.Checkpoints.MaxAge == 0 {
		c.Checkpoints.MaxAge = defaults.Checkpoints.MaxAge
		added = append(added, "checkpoints.max_age")
	}

	return added
}
