// Package configs provides embedded configuration templates for DocWeave.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution, source builds and binary releases alike.
//
// The templates are used by:
//   - cmd/docweave/cmd/config.go → 'docweave config init' creates the
//     user config at ~/.config/docweave/config.yaml
//   - cmd/docweave/cmd/config.go → 'docweave config init --project'
//     creates .docweave.yaml in the project root
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/docweave/config.yaml)
//  3. Project config (.docweave.yaml)
//  4. Environment variables (DOCWEAVE_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration:
// endpoint URLs, tokens, storage, and the checkpoint backend.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration:
// corpus filters, chunking, retrieval, and generation budgets. Meant to
// be version-controlled with the project.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
