package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

const defaultFetchTimeout = 30 * time.Second

type sourceKind int

const (
	sourcePath sourceKind = iota
	sourceURL
	sourceMap
)

// Source identifies where an OpenAPI document comes from.
type Source struct {
	kind sourceKind
	loc  string
	m    map[string]any
}

// FromPath reads the document from a local file.
func FromPath(p string) Source { return Source{kind: sourcePath, loc: p} }

// FromURL fetches the document over http(s).
func FromURL(u string) Source { return Source{kind: sourceURL, loc: u} }

// FromMap uses an already-decoded document.
func FromMap(m map[string]any) Source { return Source{kind: sourceMap, m: m} }

// ParseSource classifies a command-line argument: http:// and https:// are
// URLs, anything else is a file path.
func ParseSource(s string) Source {
	lower := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return FromURL(strings.TrimSpace(s))
	}
	return FromPath(s)
}

// String returns the location for logs and errors.
func (s Source) String() string {
	if s.kind == sourceMap {
		return "<mapping>"
	}
	return s.loc
}

// Document is a loaded, OpenAPI 3 shaped document. It is immutable.
type Document struct {
	t       *openapi3.T
	order   *declOrder
	version string // declared "swagger" or "openapi" value
	baseURL string
	source  string
}

// Title returns info.title.
func (d *Document) Title() string {
	if d.t.Info == nil {
		return ""
	}
	return d.t.Info.Title
}

// Version returns info.version.
func (d *Document) Version() string {
	if d.t.Info == nil {
		return ""
	}
	return d.t.Info.Version
}

// Description returns info.description.
func (d *Document) Description() string {
	if d.t.Info == nil {
		return ""
	}
	return d.t.Info.Description
}

// BaseURL returns the declared server URL, or "" if none.
func (d *Document) BaseURL() string { return d.baseURL }

// SpecVersion returns the declared document version, e.g. "2.0" or "3.0.3".
func (d *Document) SpecVersion() string { return d.version }

// Source returns where the document was loaded from.
func (d *Document) Source() string { return d.source }

// OpenAPI exposes the underlying kin-openapi document. Callers must not modify it.
func (d *Document) OpenAPI() *openapi3.T { return d.t }

type loadOptions struct {
	client *http.Client
	logger *zap.Logger
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) LoadOption {
	return func(o *loadOptions) {
		if c != nil {
			o.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LoadOption {
	return func(o *loadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Load reads and parses an OpenAPI 2.0 or 3.x document.
func Load(ctx context.Context, src Source, opts ...LoadOption) (doc *Document, err error) {
	o := loadOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = aotel.HTTPClient(defaultFetchTimeout)
	}

	ctx, span := otel.Tracer("agentcore/openapi").Start(ctx, "openapi.Load")
	span.SetAttributes(attribute.String("openapi.source", src.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var (
		raw map[string]any
		ord *declOrder
	)
	switch src.kind {
	case sourceMap:
		if src.m == nil {
			return nil, errmodel.Load("parse_failed", "mapping source is nil", nil, nil)
		}
		raw = normalize(src.m).(map[string]any)
	default:
		data, err := readSource(ctx, o.client, src)
		if err != nil {
			return nil, err
		}
		if isJSON(data) {
			raw, ord, err = decodeJSON(data)
		} else {
			raw, ord, err = decodeYAML(data)
		}
		if err != nil {
			return nil, errmodel.Load("parse_failed", "cannot parse document", map[string]any{"source": src.String()}, err)
		}
	}

	doc, err = build(ctx, raw, src)
	if err != nil {
		return nil, err
	}
	doc.order = ord
	o.logger.Info("loaded OpenAPI spec",
		zap.String("source", src.String()),
		zap.String("title", doc.Title()),
		zap.String("version", doc.SpecVersion()),
	)
	return doc, nil
}

func readSource(ctx context.Context, client *http.Client, src Source) ([]byte, error) {
	ectx := map[string]any{"source": src.loc}
	if src.kind == sourcePath {
		data, err := os.ReadFile(src.loc)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errmodel.Load("not_found", "spec file not found", ectx, err)
		}
		if err != nil {
			return nil, errmodel.Load("read_failed", "cannot read spec file", ectx, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.loc, nil)
	if err != nil {
		return nil, errmodel.Load("fetch_failed", "invalid spec URL", ectx, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")
	res, err := client.Do(req)
	if err != nil {
		return nil, errmodel.Load("fetch_failed", "cannot fetch spec", ectx, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errmodel.Load("fetch_failed", "cannot read spec response", ectx, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		ectx["status"] = res.StatusCode
		ectx["body"] = string(data)
		return nil, errmodel.Load("bad_status", fmt.Sprintf("spec fetch returned %d", res.StatusCode), ectx, nil)
	}
	return data, nil
}

func build(ctx context.Context, raw map[string]any, src Source) (*Document, error) {
	ectx := map[string]any{"source": src.String()}
	if v, ok := raw["swagger"]; ok {
		version := fmt.Sprint(v)
		if !strings.HasPrefix(version, "2.") {
			ectx["version"] = version
			return nil, errmodel.Load("unsupported_version", "unsupported swagger version", ectx, nil)
		}
		return buildV2(ctx, raw, src, version)
	}
	if v, ok := raw["openapi"]; ok {
		version := fmt.Sprint(v)
		if !strings.HasPrefix(version, "3.") {
			ectx["version"] = version
			return nil, errmodel.Load("unsupported_version", "unsupported openapi version", ectx, nil)
		}
		return buildV3(ctx, raw, src, version)
	}
	return nil, errmodel.Load("unsupported_version", "document declares neither swagger nor openapi", ectx, nil)
}

func buildV2(ctx context.Context, raw map[string]any, src Source, version string) (*Document, error) {
	ectx := map[string]any{"source": src.String()}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errmodel.Load("parse_failed", "cannot encode document", ectx, err)
	}
	var v2 openapi2.T
	if err := json.Unmarshal(b, &v2); err != nil {
		return nil, errmodel.Load("parse_failed", "invalid swagger 2.0 document", ectx, err)
	}
	t, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, errmodel.Load("parse_failed", "cannot convert swagger 2.0 document", ectx, err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	if err := loader.ResolveRefsIn(t, nil); err != nil {
		return nil, errmodel.Load("parse_failed", "cannot resolve references", ectx, err)
	}
	return &Document{t: t, version: version, baseURL: v2BaseURL(raw), source: src.String()}, nil
}

func buildV3(ctx context.Context, raw map[string]any, src Source, version string) (*Document, error) {
	ectx := map[string]any{"source": src.String()}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errmodel.Load("parse_failed", "cannot encode document", ectx, err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	t, err := loader.LoadFromData(b)
	if err != nil {
		return nil, errmodel.Load("parse_failed", "invalid openapi document", ectx, err)
	}
	base := ""
	if len(t.Servers) > 0 && t.Servers[0] != nil {
		base = serverURL(t.Servers[0])
		if src.kind == sourceURL {
			base = resolveAgainst(src.loc, base)
		}
	}
	return &Document{t: t, version: version, baseURL: base, source: src.String()}, nil
}

// serverURL substitutes server variables with their defaults.
func serverURL(s *openapi3.Server) string {
	u := s.URL
	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := s.Variables[name]; v != nil {
			u = strings.ReplaceAll(u, "{"+name+"}", v.Default)
		}
	}
	return u
}

// resolveAgainst resolves a relative server URL against the URL the document was fetched from.
func resolveAgainst(docURL, server string) string {
	su, err := url.Parse(server)
	if err != nil || su.IsAbs() {
		return server
	}
	du, err := url.Parse(docURL)
	if err != nil {
		return server
	}
	return du.ResolveReference(su).String()
}

// v2BaseURL builds scheme://host/basePath. Without a host there is no base URL.
func v2BaseURL(raw map[string]any) string {
	host, _ := raw["host"].(string)
	if host == "" {
		return ""
	}
	scheme := "https"
	if schemes, ok := raw["schemes"].([]any); ok && len(schemes) > 0 {
		if s, ok := schemes[0].(string); ok && s != "" {
			scheme = s
		}
	}
	basePath, _ := raw["basePath"].(string)
	basePath = strings.TrimRight(basePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return scheme + "://" + host + basePath
}
