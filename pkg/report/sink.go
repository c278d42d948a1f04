package report

import (
	"context"
	"errors"
	"fmt"
)

// Sink persists a result and returns where it went (a path, URL or ID).
type Sink interface {
	Save(ctx context.Context, r *AnalysisResult) (string, error)
}

// MultiSink writes to every sink in order. It returns the first non-empty
// location and all errors joined; a failing sink does not stop the rest.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, r *AnalysisResult) (string, error) {
	var (
		location string
		errs     []error
	)
	for _, s := range m {
		if s == nil {
			continue
		}
		loc, err := s.Save(ctx, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if location == "" {
			location = loc
		}
	}
	return location, errors.Join(errs...)
}

// NopSink discards results.
type NopSink struct{}

// Save implements Sink.
func (NopSink) Save(context.Context, *AnalysisResult) (string, error) { return "", nil }

// Format is a serialization format for results.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatDOT  Format = "dot"
	FormatSVG  Format = "svg"
)

// ParseFormat validates a report format name ("yml" is accepted).
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML, FormatDOT, FormatSVG:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (json, yaml, dot, svg)", s)
}
