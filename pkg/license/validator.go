package license

import (
	"regexp"
	"strings"

	"github.com/matzehuels/stackaudit/pkg/graph"
)

// minLength is the shortest text considered for recognition.
const minLength = 3

// HeuristicSuffix marks names inferred from clause phrases.
const HeuristicSuffix = " (Detected by clause heuristics)"

// Canonical license types reported by [Validator.Type].
const (
	TypeMIT        = "MIT"
	TypeBSD3Clause = "BSD-3-Clause"
	TypeApache20   = "Apache-2.0"
	TypeGPL30      = "GPL-3.0"
	TypeLGPL21     = "LGPL-2.1"
	TypeMPL20      = "MPL-2.0"
)

const classifierStart = "License ::"

// rules are tried in order; the matched text is the license name.
var rules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bMIT\b`),
	regexp.MustCompile(`(?i)\b(?:3[-\s]?Clause\s+)?BSD(?:\s+(?:License|[-\s]?3[-\s]?Clause))?\b`),
	regexp.MustCompile(`(?i)\bNew\s+BSD\s+License\b`),
	regexp.MustCompile(`(?i)\bModified\s+BSD\s+License\b`),
	regexp.MustCompile(`(?i)\bApache(?:[-\s]?2\.0)?\b`),
	regexp.MustCompile(`(?i)\bApache(?: License)?(?: Version)? ?2\.0\b`),
	regexp.MustCompile(`(?i)\bGPL(?:[- ]?v?(\d(?:\.\d)?)?)\b`),
	regexp.MustCompile(`(?i)\bLGPL(?:[- ]?v?(\d(?:\.\d)?)?)\b`),
	regexp.MustCompile(`(?i)\bMPL(?:[- ]?v?(\d(?:\.\d)?)?)\b`),
	regexp.MustCompile(`(?i)\bMozilla\s+Public\s+License(?:\s+2\.0)?\b`),
	regexp.MustCompile(`(?i)\bPython Software Foundation\b`),
	regexp.MustCompile(`(?i)\bPSF\b`),
	regexp.MustCompile(`(?i)\bProprietary\b`),
	regexp.MustCompile(`(?i)\bCommercial\b`),
}

type heuristic struct {
	name    string
	phrases []string
}

// heuristics are checked in order after every rule missed.
var heuristics = []heuristic{
	{"BSD", []string{
		"redistribution and use in source and binary forms",
		"without modification are permitted",
		"this software is provided by the copyright holders",
		"neither the name of the",
		"redistribution and use",
	}},
	{"MIT", []string{
		"permission is hereby granted, free of charge",
		"to deal in the software without restriction",
		"the software is provided 'as is'",
	}},
	{"Apache 2.0", []string{
		"licensed under the apache license",
		"apache license, version 2.0",
		"http://www.apache.org/licenses/license-2.0",
	}},
	{"GPL", []string{
		"gnu general public license",
		"this program is free software",
		"can redistribute it and/or modify it under the terms",
	}},
}

// typeMap is scanned in order; LGPL precedes GPL so it is not shadowed.
var typeMap = []struct {
	key, typ string
}{
	{"mit", TypeMIT},
	{"bsd", TypeBSD3Clause},
	{"apache", TypeApache20},
	{"lgpl", TypeLGPL21},
	{"gpl", TypeGPL30},
	{"mpl", TypeMPL20},
	{"mozilla", TypeMPL20},
	{"psf", TypeMIT},
	{"python", TypeMIT},
}

// Validator recognizes and classifies license strings. The zero value is
// ready to use and safe for concurrent use.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator { return &Validator{} }

// Extract returns the license name recognized in text.
func (v *Validator) Extract(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(text) < minLength {
		return "", false
	}
	for _, re := range rules {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m), true
		}
	}
	lower := strings.ToLower(text)
	for _, h := range heuristics {
		for _, p := range h.phrases {
			if strings.Contains(lower, p) {
				return h.name + HeuristicSuffix, true
			}
		}
	}
	return "", false
}

// IsValid reports whether text contains a recognizable license.
func (v *Validator) IsValid(text string) bool {
	_, ok := v.Extract(text)
	return ok
}

// Type maps a license string to its canonical type, or "" when the
// license is unrecognized or has no canonical type (e.g. Proprietary).
func (v *Validator) Type(text string) string {
	name, ok := v.Extract(text)
	if !ok {
		return ""
	}
	lower := strings.ToLower(name)
	for _, m := range typeMap {
		if strings.Contains(lower, m.key) {
			return m.typ
		}
	}
	return ""
}

// FromClassifier returns the license named by a trove classifier such as
// "License :: OSI Approved :: MIT License". The recognized name is
// preferred; otherwise the last segment is returned as is.
func (v *Validator) FromClassifier(classifier string) (string, bool) {
	if !strings.HasPrefix(classifier, classifierStart) {
		return "", false
	}
	parts := strings.Split(classifier, " :: ")
	if len(parts) < 3 {
		return "", false
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if name, ok := v.Extract(last); ok {
		return name, true
	}
	return last, last != ""
}

// FromClassifiers returns the first recognized license among classifiers.
func (v *Validator) FromClassifiers(classifiers []string) (string, bool) {
	for _, c := range classifiers {
		if !strings.Contains(c, classifierStart) {
			continue
		}
		name, ok := v.FromClassifier(c)
		if !ok {
			continue
		}
		if extracted, ok := v.Extract(name); ok {
			return extracted, true
		}
	}
	return "", false
}

// RepoLicense is a license identifier reported by a code host.
type RepoLicense struct {
	Source     string // graph.LicenseSourceGitHub or graph.LicenseSourceGitLab
	Identifier string
}

// Sources are the inputs of the license cascade.
type Sources struct {
	License           string
	LicenseExpression string
	Classifiers       []string
	Repositories      []RepoLicense
}

// Empty reports whether the registry sources carry no license data, in
// which case repository lookups are worthwhile.
func (s Sources) Empty() bool {
	return strings.TrimSpace(s.License) == "" && strings.TrimSpace(s.LicenseExpression) == "" &&
		len(s.Classifiers) == 0
}

// Resolve runs the cascade and stops at the first recognized license:
// the license field, the license expression, classifiers, then each
// repository license in order. When nothing is recognized but the license
// field is non-empty, its first line is returned as an unrecognized
// license. Resolve returns nil when there is no license information.
func (v *Validator) Resolve(s Sources) *graph.License {
	if l := v.recognize(s.License, graph.LicenseSourceField); l != nil {
		return l
	}
	if l := v.recognize(s.LicenseExpression, graph.LicenseSourceExpression); l != nil {
		return l
	}
	if name, ok := v.FromClassifiers(s.Classifiers); ok {
		return v.newLicense(name, graph.LicenseSourceClassifier)
	}
	for _, r := range s.Repositories {
		if l := v.recognize(r.Identifier, r.Source); l != nil {
			return l
		}
	}
	if raw := firstLine(s.License); raw != "" {
		return &graph.License{Name: raw, Source: graph.LicenseSourceRaw}
	}
	return nil
}

func (v *Validator) recognize(text, source string) *graph.License {
	name, ok := v.Extract(text)
	if !ok {
		return nil
	}
	return v.newLicense(name, source)
}

func (v *Validator) newLicense(name, source string) *graph.License {
	return &graph.License{
		Name:       name,
		Type:       v.Type(name),
		Source:     source,
		Recognized: true,
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
