package mcp

// AskCorpusInput is the input schema for the ask_corpus tool.
type AskCorpusInput struct {
	RepoID   string  `json:"repo_id" jsonschema:"repository ID of an indexed corpus"`
	Question string  `json:"question" jsonschema:"the question to answer from the corpus"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"number of chunks to ground the answer on, default 5"`
	Temperature float64 `json:"temperature,omitempty" jsonschema:"sampling temperature, default 0.3"`
}

// AskCorpusOutput is the output schema for the ask_corpus tool.
type AskCorpusOutput struct {
	Answer string `json:"answer" jsonschema:"the model's answer grounded in retrieved chunks"`
}

// SearchCorpusInput is the input schema for the search_corpus tool.
type SearchCorpusInput struct {
	RepoID string `json:"repo_id" jsonschema:"repository ID of an indexed corpus"`
	Query  string `json:"query" jsonschema:"the search query to embed and match"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// KeywordSearchInput is the input schema for the keyword_search tool.
type KeywordSearchInput struct {
	RepoID string `json:"repo_id" jsonschema:"repository ID of an indexed corpus"`
	Query  string `json:"query" jsonschema:"keyword query; identifiers are split on case and underscores"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput is the output schema shared by both search tools.
type SearchOutput struct {
	Results []SearchResult `json:"results" jsonschema:"matched chunks, best first"`
}

// SearchResult is one matched chunk.
type SearchResult struct {
	FilePath     string   `json:"file_path" jsonschema:"source file the chunk came from"`
	ChunkID      int      `json:"chunk_id" jsonschema:"position of the chunk in the index"`
	Text         string   `json:"text" jsonschema:"chunk text"`
	Score        float64  `json:"score,omitempty" jsonschema:"keyword relevance score, keyword_search only"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched, keyword_search only"`
}

// GenerationStatusInput is the input schema for the generation_status tool.
type GenerationStatusInput struct {
	RepoID string `json:"repo_id" jsonschema:"repository ID of the generation job"`
}

// GenerationStatusOutput is the output schema for the generation_status tool.
type GenerationStatusOutput struct {
	RepoID         string `json:"repo_id"`
	Status         string `json:"status" jsonschema:"job phase: pending, ingesting, scanning, indexing, generating, merging, completed, failed"`
	Progress       int    `json:"progress" jsonschema:"overall progress percentage"`
	CurrentStep    string `json:"current_step,omitempty"`
	TotalSteps     int    `json:"total_steps,omitempty" jsonschema:"planned chapter count once the outline exists"`
	CompletedSteps int    `json:"completed_steps,omitempty"`
	Files          int    `json:"files,omitempty" jsonschema:"corpus files admitted for this job"`
	LastUpdated    string `json:"last_updated,omitempty" jsonschema:"RFC 3339 timestamp of the last checkpoint write"`
	Error          string `json:"error,omitempty" jsonschema:"failure reason when status is failed"`
}

// ListGenerationsInput is the input schema for the list_generations tool.
type ListGenerationsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of jobs to list, default 20"`
}

// ListGenerationsOutput is the output schema for the list_generations tool.
type ListGenerationsOutput struct {
	Generations []GenerationStatusOutput `json:"generations" jsonschema:"incomplete jobs, newest first"`
}
