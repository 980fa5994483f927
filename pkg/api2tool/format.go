package api2tool

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
)

// Format selects the shape of a conversion result.
type Format string

const (
	FormatTools Format = "tools"
	FormatDict  Format = "dict"
	FormatFile  Format = "file"
	FormatNames Format = "names"
	FormatInfo  Format = "info"
)

// Formats lists every accepted format.
var Formats = []Format{FormatTools, FormatDict, FormatFile, FormatNames, FormatInfo}

// ParseFormat validates a format selector. The empty string means tools.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatTools, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, known := range Formats {
		names[i] = string(known)
	}
	return "", errmodel.Value("invalid_format", "unknown output format "+s+"; expected one of "+strings.Join(names, ", "),
		map[string]any{"format": s, "allowed": names})
}

// Options configures Convert.
type Options struct {
	Format  string
	BaseURL string
	// Package is the package clause of the file format. Defaults to "tools".
	Package     string
	HTTPClient  *http.Client
	Logger      *zap.Logger
	Headers     map[string]string
	IncludeTags []string
	ExcludeTags []string
}

// Info summarizes a converted API.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	ToolCount   int    `json:"tool_count"`
	// ToolNames lists operation identifiers, in declaration order.
	ToolNames []string `json:"tool_names"`
}

// Result holds exactly one populated field, chosen by Format.
type Result struct {
	Format Format
	Tools  []*Tool
	// Dict and Names are keyed by operation identifier, not tool name.
	Dict  map[string]*Tool
	Code  string
	Names []string
	Info  *Info
}

// Value returns the populated field.
func (r *Result) Value() any {
	switch r.Format {
	case FormatDict:
		return r.Dict
	case FormatFile:
		return r.Code
	case FormatNames:
		return r.Names
	case FormatInfo:
		return r.Info
	default:
		return r.Tools
	}
}

// Convert loads src, extracts its operations, synthesizes tools and shapes
// them per opts.Format. The format is checked before any I/O.
func Convert(ctx context.Context, src openapi.Source, opts Options) (*Result, error) {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loadOpts := []openapi.LoadOption{openapi.WithLogger(logger)}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, openapi.WithHTTPClient(opts.HTTPClient))
	}
	doc, err := openapi.Load(ctx, src, loadOpts...)
	if err != nil {
		return nil, err
	}
	spec, err := openapi.Extract(doc)
	if err != nil {
		return nil, err
	}
	tools, err := SynthesizeAll(spec, SynthOptions{
		BaseURL:     opts.BaseURL,
		HTTPClient:  opts.HTTPClient,
		Logger:      logger,
		Headers:     opts.Headers,
		IncludeTags: opts.IncludeTags,
		ExcludeTags: opts.ExcludeTags,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("converted API",
		zap.String("title", spec.Title),
		zap.String("format", string(format)),
		zap.Int("tools", len(tools)),
	)
	return shape(format, spec, tools, opts)
}

func shape(format Format, spec *openapi.Spec, tools []*Tool, opts Options) (*Result, error) {
	r := &Result{Format: format}
	switch format {
	case FormatTools:
		r.Tools = tools
	case FormatDict:
		r.Dict = make(map[string]*Tool, len(tools))
		for _, t := range tools {
			r.Dict[t.Operation.ID] = t
		}
	case FormatNames:
		r.Names = operationIDs(tools)
	case FormatInfo:
		base := spec.BaseURL
		if opts.BaseURL != "" {
			base = opts.BaseURL
		}
		r.Info = &Info{
			Title:       spec.Title,
			Version:     spec.Version,
			Description: spec.Description,
			BaseURL:     base,
			ToolCount:   len(tools),
			ToolNames:   operationIDs(tools),
		}
	case FormatFile:
		code, err := RenderGo(tools, RenderOptions{Package: opts.Package, Title: spec.Title, BaseURL: opts.BaseURL})
		if err != nil {
			return nil, err
		}
		r.Code = code
	}
	return r, nil
}

func operationIDs(tools []*Tool) []string {
	ids := make([]string, len(tools))
	for i, t := range tools {
		ids[i] = t.Operation.ID
	}
	return ids
}
