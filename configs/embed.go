// Package configs provides the embedded configuration template for studyrag.
//
// The template is embedded at build time using Go's //go:embed directive,
// so it ships inside the binary regardless of how it was installed:
//   - Source builds (go install)
//   - Binary releases
//
// It is used by:
//   - cmd/studyrag/cmd/config.go → `studyrag config init` writes it to
//     <data-dir>/config.yaml
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. Data-dir config (<data-dir>/config.yaml)
//  3. Environment variables (STUDYRAG_*)
//
// To modify the template, edit config.example.yaml in this directory and
// rebuild. Changes will be embedded in the next build.
package configs

import _ "embed"

// ConfigTemplate is the commented starter configuration.
// Created by: `studyrag config init` at <data-dir>/config.yaml
// Contains: chunking, retrieval tuning, embedding provider, and logging
// settings, with every default spelled out.
//
//go:embed config.example.yaml
var ConfigTemplate string
