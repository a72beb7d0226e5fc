package settings

import (
	"encoding/json"
	"strings"
)

// probeSpec lists what the effective configuration must mention for a
// language id to be considered lintable. A document passes the probe when any
// parser pattern appears in the resolved parser, or any plugin name is
// configured.
type probeSpec struct {
	parsers []string
	plugins []string
}

// probeTable covers the ambiguous file types: ones the engine may or may not
// be configured for. Language ids missing from the table (plain JavaScript)
// always pass.
var probeTable = map[string]probeSpec{
	"typescript":      {parsers: []string{"@typescript-eslint/parser", "typescript-eslint"}, plugins: []string{"@typescript-eslint"}},
	"typescriptreact": {parsers: []string{"@typescript-eslint/parser", "typescript-eslint"}, plugins: []string{"@typescript-eslint"}},
	"vue":             {parsers: []string{"vue-eslint-parser"}, plugins: []string{"vue"}},
	"svelte":          {parsers: []string{"svelte-eslint-parser"}, plugins: []string{"svelte"}},
	"astro":           {parsers: []string{"astro-eslint-parser"}, plugins: []string{"astro"}},
	"html":            {plugins: []string{"html", "@html-eslint"}},
	"markdown":        {plugins: []string{"markdown", "@eslint/markdown"}},
	"json":            {parsers: []string{"jsonc-eslint-parser"}, plugins: []string{"json", "jsonc"}},
	"jsonc":           {parsers: []string{"jsonc-eslint-parser"}, plugins: []string{"json", "jsonc"}},
	"yaml":            {parsers: []string{"yaml-eslint-parser"}, plugins: []string{"yml", "yaml"}},
}

// ProbeMatches decides whether the effective configuration for a document
// supports its language id. config is the raw per-file configuration as the
// engine reports it; both the legacy (top-level parser/plugins) and the flat
// (languageOptions.parser) shapes are accepted.
func ProbeMatches(languageID string, config json.RawMessage) bool {
	spec, ambiguous := probeTable[languageID]
	if !ambiguous {
		return true
	}
	if len(config) == 0 {
		return false
	}

	var shape struct {
		Parser          string          `json:"parser"`
		Plugins         json.RawMessage `json:"plugins"`
		LanguageOptions struct {
			Parser json.RawMessage `json:"parser"`
		} `json:"languageOptions"`
	}
	if err := json.Unmarshal(config, &shape); err != nil {
		return false
	}

	parserText := shape.Parser + string(shape.LanguageOptions.Parser)
	for _, p := range spec.parsers {
		if p != "" && strings.Contains(parserText, p) {
			return true
		}
	}
	for _, name := range pluginNames(shape.Plugins) {
		for _, p := range spec.plugins {
			if name == p {
				return true
			}
		}
	}
	return false
}

// pluginNames extracts plugin names from either shape: a legacy string array
// or a flat-config object keyed by plugin name.
func pluginNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		return names
	}
	return nil
}
