// Command agentcore converts OpenAPI documents into callable tools, serves them
// over MCP and reports provider settings.
//
// Usage:
//
//	agentcore version
//	agentcore info [-provider name]
//	agentcore convert <source> [-f format] [-o file] [-b base-url]
//	agentcore validate <source>
//	agentcore serve-mcp <source> [-b base-url]
//	agentcore index [-namespace ns] [-strategy s] <file>...
//	agentcore search [-namespace ns] [-k n] <query>
//	agentcore mcp-tools <server command> [args...]
//	agentcore eval [-provider name] [-type method] [-dataset file | -builtin name | -fixtures dir] [-compare a,b]
//
// Malformed command lines exit with status 2, failed commands with 1.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/api2tool"
	"github.com/wilhg/agentcore/pkg/chunking"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/eval"
	"github.com/wilhg/agentcore/pkg/logging"
	"github.com/wilhg/agentcore/pkg/mcpclient"
	"github.com/wilhg/agentcore/pkg/mcpserver"
	"github.com/wilhg/agentcore/pkg/openapi"
	aotel "github.com/wilhg/agentcore/pkg/otel"
	"github.com/wilhg/agentcore/pkg/provider"
	"github.com/wilhg/agentcore/pkg/rag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env carries what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"info":      runInfo,
	"convert":   runConvert,
	"validate":  runValidate,
	"serve-mcp": runServeMCP,
	"index":     runIndex,
	"search":    runSearch,
	"mcp-tools": runMCPTools,
	"eval":      runEval,
}

// usageError marks a malformed command line.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "agentcore %s (commit=%s, date=%s)\n", version, commit, date)
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := config.LoadFromFiles(os.Getenv("AGENTCORE_CONFIG"))
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.Logging).With(zap.String("command", args[0]))
	defer func() { _ = logger.Sync() }()

	shutdown, err := aotel.Init(ctx, aotel.Config{ServiceName: "agentcore", ServiceVersion: version, UseStdout: cfg.Tracing.Stdout})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	e := &env{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	if err := cmd(ctx, e, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: agentcore <command> [flags]

commands:
  version                      print version
  info [-provider name]        show provider settings and registered backends
  convert <source>             convert an OpenAPI document (-f tools|dict|file|names|info)
  validate <source>            validate an OpenAPI document
  serve-mcp <source>           serve the converted tools over MCP on stdio
  index <file>...              chunk, embed and store files
  search <query>               query the vector store
  mcp-tools <cmd> [args...]    list the tools of an MCP server started with cmd
  eval                         score an LLM on a dataset (-compare a,b ranks providers)

AGENTCORE_CONFIG names an optional TOML config file.
`)
}

// parseInterspersed parses flags that may appear before or after positional
// arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, usageError{err}
		}
		if fs.NArg() == 0 {
			return pos, nil
		}
		pos = append(pos, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInfo(_ context.Context, e *env, args []string) error {
	fs := newFlagSet("info", e)
	name := fs.String("provider", "", "provider to describe (default: configured main provider)")
	if _, err := parseInterspersed(fs, args); err != nil {
		return err
	}
	info, err := provider.GetInfo(e.cfg, *name)
	if err != nil {
		return err
	}
	return writeJSON(e.stdout, map[string]any{
		"info":                info,
		"llm_providers":       provider.LLMProviders(),
		"embedding_providers": provider.EmbeddingProviders(),
		"vector_stores":       provider.VectorStores(),
	})
}

func oneSource(fs *flag.FlagSet, args []string) (openapi.Source, error) {
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return openapi.Source{}, err
	}
	if len(pos) != 1 {
		return openapi.Source{}, usagef("%s: expected exactly one source path or URL, got %d", fs.Name(), len(pos))
	}
	return openapi.ParseSource(pos[0]), nil
}

func runConvert(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("convert", e)
	format := fs.String("f", "tools", "output format: tools, dict, file, names or info")
	out := fs.String("o", api2tool.DefaultFileName, "output path for -f file")
	base := fs.String("b", "", "base URL overriding the document's servers")
	pkg := fs.String("package", "", "package clause for -f file")
	include := fs.String("include-tags", "", "comma-separated tags to keep")
	exclude := fs.String("exclude-tags", "", "comma-separated tags to drop")
	src, err := oneSource(fs, args)
	if err != nil {
		return err
	}
	res, err := api2tool.Convert(ctx, src, api2tool.Options{
		Format:      *format,
		BaseURL:     *base,
		Package:     *pkg,
		Logger:      e.logger,
		IncludeTags: splitList(*include),
		ExcludeTags: splitList(*exclude),
	})
	if err != nil {
		return err
	}
	if res.Format == api2tool.FormatFile {
		if err := api2tool.WriteFile(*out, res.Code); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "wrote %s\n", *out)
		return nil
	}
	return writeJSON(e.stdout, res.Value())
}

func runValidate(ctx context.Context, e *env, args []string) error {
	src, err := oneSource(newFlagSet("validate", e), args)
	if err != nil {
		return err
	}
	doc, err := openapi.Load(ctx, src, openapi.WithLogger(e.logger))
	if err != nil {
		return err
	}
	if err := openapi.Validate(ctx, doc); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: valid OpenAPI %s document %q version %s\n", src, doc.SpecVersion(), doc.Title(), doc.Version())
	return nil
}

func runServeMCP(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("serve-mcp", e)
	base := fs.String("b", "", "base URL overriding the document's servers")
	src, err := oneSource(fs, args)
	if err != nil {
		return err
	}
	res, err := api2tool.Convert(ctx, src, api2tool.Options{BaseURL: *base, Logger: e.logger})
	if err != nil {
		return err
	}
	reg, err := agent.NewRegistry()
	if err != nil {
		return err
	}
	for _, t := range res.Tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	srv, err := mcpserver.New("agentcore", version, reg, mcpserver.WithLogger(e.logger))
	if err != nil {
		return err
	}
	e.logger.Info("serving MCP on stdio", zap.Int("tools", reg.Len()))
	return srv.ServeStdio(ctx)
}

func runIndex(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("index", e)
	name := fs.String("provider", "", "embedding provider")
	store := fs.String("store", "", "vector store type")
	ns := fs.String("namespace", "", "namespace")
	strategy := fs.String("strategy", string(chunking.StrategyParagraph), "chunking strategy")
	size := fs.Int("chunk-size", chunking.DefaultSize, "chunk size")
	overlap := fs.Int("chunk-overlap", chunking.DefaultOverlap, "chunk overlap")
	files, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return usagef("index: no files given")
	}
	st, err := chunking.ParseStrategy(*strategy)
	if err != nil {
		return err
	}
	emb, err := provider.GetEmbeddings(ctx, e.cfg, *name)
	if err != nil {
		return err
	}
	vs, err := provider.GetVectorStore(ctx, e.cfg, *store)
	if err != nil {
		return err
	}
	docs := make([]rag.Document, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		docs = append(docs, rag.Document{ID: f, Text: string(b), Metadata: map[string]any{"source": f}})
	}
	n, err := rag.Index(ctx, emb, vs, *ns, docs, rag.Options{
		Chunker:  chunking.New(chunking.Options{Size: *size, Overlap: *overlap, Logger: e.logger}),
		Strategy: st,
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "indexed %d chunks from %d files\n", n, len(files))
	return nil
}

func runSearch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("search", e)
	name := fs.String("provider", "", "embedding provider")
	store := fs.String("store", "", "vector store type")
	ns := fs.String("namespace", "", "namespace")
	k := fs.Int("k", 5, "number of results")
	words, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return usagef("search: no query given")
	}
	emb, err := provider.GetEmbeddings(ctx, e.cfg, *name)
	if err != nil {
		return err
	}
	vs, err := provider.GetVectorStore(ctx, e.cfg, *store)
	if err != nil {
		return err
	}
	res, err := rag.Search(ctx, emb, vs, *ns, strings.Join(words, " "), *k, nil)
	if err != nil {
		return err
	}
	return writeJSON(e.stdout, res)
}

func runMCPTools(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return usagef("mcp-tools: no server command given")
	}
	c, err := mcpclient.Connect(ctx, &mcp.CommandTransport{Command: exec.CommandContext(ctx, args[0], args[1:]...)})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	tools, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{"name": t.Name, "description": t.Description, "input_schema": json.RawMessage(t.InputSchema)}
	}
	return writeJSON(e.stdout, out)
}

func runEval(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("eval", e)
	name := fs.String("provider", "", "LLM provider (default: configured main provider)")
	embName := fs.String("embeddings", "", "embedding provider for semantic_similarity")
	method := fs.String("type", string(eval.MethodSemanticSimilarity), "evaluation type: exact_match, contains, length_check or semantic_similarity")
	dataset := fs.String("dataset", "", "JSON dataset file")
	builtinName := fs.String("builtin", "", "bundled dataset: "+strings.Join(eval.Builtins(), ", "))
	fixtures := fs.String("fixtures", "", "directory of one-sample JSON fixtures")
	size := fs.Int("size", 0, "use only the first n samples (0 for all)")
	out := fs.String("o", "", "write full results to this path")
	compare := fs.String("compare", "", "comma-separated providers to compare instead of -provider")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) > 0 {
		return usagef("eval: unexpected arguments %q", pos)
	}
	sources := 0
	for _, s := range []string{*dataset, *builtinName, *fixtures} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return usagef("eval: use only one of -dataset, -builtin and -fixtures")
	}
	m, err := eval.ParseMethod(*method)
	if err != nil {
		return err
	}

	var samples []eval.Sample
	switch {
	case *dataset != "":
		samples, err = eval.LoadDataset(*dataset)
	case *fixtures != "":
		samples, err = eval.LoadFixtures(os.DirFS(*fixtures), ".")
	default:
		b := *builtinName
		if b == "" {
			b = "basic_qa"
		}
		samples, err = eval.Builtin(b, 0)
	}
	if err != nil {
		return err
	}
	if *size > 0 && *size < len(samples) {
		samples = samples[:*size]
	}

	opts := eval.Options{Logger: e.logger}
	if m == eval.MethodSemanticSimilarity {
		if opts.Embedder, err = provider.GetEmbeddings(ctx, e.cfg, *embName); err != nil {
			return err
		}
	}

	if names := splitList(*compare); len(names) > 0 {
		candidates := make([]eval.Candidate, 0, len(names))
		for _, n := range names {
			model, err := provider.GetLLM(ctx, e.cfg, n)
			if err != nil {
				return err
			}
			candidates = append(candidates, eval.Candidate{Name: n, Model: model})
		}
		cmp, err := eval.Compare(ctx, candidates, samples, m, opts)
		if err != nil {
			return err
		}
		if *out != "" {
			if err := eval.WriteComparison(*out, cmp); err != nil {
				return err
			}
		}
		return writeJSON(e.stdout, cmp)
	}

	model, err := provider.GetLLM(ctx, e.cfg, *name)
	if err != nil {
		return err
	}
	ev, err := eval.New(model, opts)
	if err != nil {
		return err
	}
	sum, results, err := ev.EvaluateDataset(ctx, samples, m)
	if err != nil {
		return err
	}
	if *out != "" {
		if err := eval.WriteResults(*out, sum, results); err != nil {
			return err
		}
	}
	return writeJSON(e.stdout, sum)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
