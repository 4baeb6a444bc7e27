package llm

import (
	"fmt"
	"strings"
)

const basePromptRules = `You are DocWeave Documentation Engine - an expert technical writer and code analyst.
You convert source material into PROFESSIONAL, COMPREHENSIVE, and STRUCTURED documentation.

STRICT RULES:
- Output MUST be valid markdown
- Use clear hierarchical structure with numbered sections
- Be thorough but concise
- Do NOT invent or assume anything not in the source
- Only document what actually exists
- Use code blocks for code examples
- Include practical examples where relevant
- No conversational tone - be professional and direct
- No emojis or decorative elements
- No meta commentary about the documentation process
`

const codeModePrompt = `
DOCUMENT MODE: CODE -> DOCUMENTATION
Analyze the code and create comprehensive technical documentation.

ANALYSIS APPROACH:
1. Identify the overall purpose and architecture
2. Document modules, types, and functions: purpose, parameters, returns, relationships
3. Identify patterns and design decisions
4. Note error handling, edge cases, and potential issues

OUTPUT STRUCTURE:
- Start with a clear title and overview
- Include an architecture/design section
- Document all major components systematically
- Include usage examples and best practices
- Note any limitations or considerations
`

const textModePrompt = `
DOCUMENT MODE: TEXT/DATA -> DOCUMENTATION
Transform the text or data content into well-structured documentation.

PROCESSING APPROACH:
1. Identify the content type (text, JSON, records, configuration)
2. For data structures: analyze schema, fields, and relationships
3. For text: identify main themes and organize hierarchically
4. Extract key insights and conclusions while preserving meaning

OUTPUT STRUCTURE:
- Clear title and executive summary
- For data: schema documentation with field descriptions
- For text: organized sections with headings
- Key points highlighted, conclusions at the end
- Use tables for structured data when appropriate
`

// systemPrompt returns the documentation system prompt for a content type.
func systemPrompt(ct ContentType) string {
	if ct == ContentTypeCode {
		return basePromptRules + codeModePrompt
	}
	return basePromptRules + textModePrompt
}

const codeUserScaffold = `Analyze the following code and generate comprehensive technical documentation.

REQUIRED DOCUMENTATION STRUCTURE:
1. **Title** (use provided title or generate an appropriate one)
2. **Overview** - purpose, scope, key technologies
3. **Architecture & Design** - structure, patterns, component relationships
4. **Components & Modules** - each major component with behavior and examples
5. **Usage & Examples** - how to use the code, common cases
6. **Technical Details** - error handling, edge cases, performance notes
7. **Summary & Notes** - key takeaways and considerations

FORMATTING:
- Proper markdown syntax with a clear heading hierarchy
- Code blocks with language tags
- Bullet points for lists, bold for emphasis

SOURCE CODE:
============
`

const textUserScaffold = `Transform the following content into well-structured documentation.

REQUIRED DOCUMENTATION STRUCTURE:
1. **Title** (use provided title or generate one from the content)
2. **Executive Summary** - main purpose and key points
3. **Main Content** - logical sections with clear headings
4. **Key Concepts** - important ideas and their relationships
5. **Insights & Analysis** - patterns and conclusions
6. **Summary** - main takeaways

FORMATTING:
- Proper markdown syntax with a clear heading hierarchy
- Tables for structured data, code blocks for technical terms
- Bullet points for lists, bold for key terms

SOURCE TEXT:
============
`

// userPrompt assembles the generation prompt: identity lines, detected
// structure hints, the mode scaffold, and the source material.
func userPrompt(req GenerateRequest) string {
	var b strings.Builder

	if req.Title != "" {
		fmt.Fprintf(&b, "USER_PROVIDED_TITLE: %s\n", req.Title)
	}
	if req.FileCount > 0 {
		fmt.Fprintf(&b, "FILES_PROCESSED: %d file(s)\n", req.FileCount)
	}

	if hints := structureHints(req.Content); len(hints) > 0 {
		b.WriteString("\nCONTENT_ANALYSIS:\n")
		for _, hint := range hints {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
	}

	if req.ContentType == ContentTypeCode {
		b.WriteString("CONTENT_TYPE: Code\n\n")
		b.WriteString(codeUserScaffold)
	} else {
		b.WriteString("CONTENT_TYPE: Text\n\n")
		b.WriteString(textUserScaffold)
	}

	b.WriteString(req.Content)
	b.WriteString("\n")
	return b.String()
}

// structureHints flags content shapes that benefit from schema-style
// documentation.
func structureHints(content string) []string {
	lower := strings.ToLower(content)
	var hints []string

	if strings.Contains(content, "{") && strings.Contains(content, "}") &&
		(strings.Contains(lower, "\":") || strings.Contains(lower, "': ")) {
		hints = append(hints, "The content contains JSON data structures")
	}
	if containsAny(lower, "mongodb", "collection", "$oid", "$date") {
		hints = append(hints, "The content appears to be database records")
	}
	if containsAny(lower, "_id", "createdat", "updatedat") {
		hints = append(hints, "The content contains data records with ids and timestamps")
	}
	if containsAny(lower, "config", "settings", "environment") {
		hints = append(hints, "The content appears to be configuration data")
	}
	return hints
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
