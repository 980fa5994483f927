// Package eval runs prompts through an LLM, scores the answers against
// expected outputs and compares providers on a shared dataset.
package eval

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Method selects how an answer is scored.
type Method string

const (
	MethodExactMatch         Method = "exact_match"
	MethodContains           Method = "contains"
	MethodLengthCheck        Method = "length_check"
	MethodSemanticSimilarity Method = "semantic_similarity"
)

// Methods lists every accepted method.
var Methods = []Method{MethodExactMatch, MethodContains, MethodLengthCheck, MethodSemanticSimilarity}

// ParseMethod validates a method name. The empty string means semantic_similarity.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return MethodSemanticSimilarity, nil
	}
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	names := make([]string, len(Methods))
	for i, known := range Methods {
		names[i] = string(known)
	}
	return "", errmodel.Value("invalid_eval_type", "unknown evaluation type "+s+"; expected one of "+strings.Join(names, ", "),
		map[string]any{"type": s, "allowed": names})
}

// Result is the outcome of one sample.
type Result struct {
	Name      string         `json:"name,omitempty"`
	Prompt    string         `json:"prompt"`
	Expected  string         `json:"expected"`
	Actual    string         `json:"actual"`
	Score     float64        `json:"score"`
	Metrics   map[string]any `json:"metrics"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
	LatencyMS float64        `json:"latency_ms"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary aggregates a dataset run. Metrics holds the mean of every numeric
// or boolean per-sample metric.
type Summary struct {
	TotalSamples  int                `json:"total_samples"`
	AvgScore      float64            `json:"avg_score"`
	Scores        []float64          `json:"scores"`
	Metrics       map[string]float64 `json:"metrics"`
	FailedSamples int                `json:"failed_samples"`
	AvgLatencyMS  float64            `json:"avg_latency_ms"`
	TotalTimeMS   float64            `json:"total_time_ms"`
}

// Options configures an Evaluator.
type Options struct {
	// Embedder scores semantic_similarity. Other methods do not need it.
	Embedder embedding.Embedder
	// Generate is passed to llm.LLM.Generate ("model", "temperature", "max_tokens").
	Generate map[string]any
	Logger   *zap.Logger
}

// Evaluator scores one model.
type Evaluator struct {
	model  llm.LLM
	emb    embedding.Embedder
	gen    map[string]any
	logger *zap.Logger
	now    func() time.Time
}

// New returns an evaluator for model.
func New(model llm.LLM, opts Options) (*Evaluator, error) {
	if model == nil {
		return nil, errmodel.Configuration("missing_llm", "eval: an LLM is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		model:  model,
		emb:    opts.Embedder,
		gen:    opts.Generate,
		logger: logger.With(zap.String("component", "eval"), zap.String("provider", model.Name())),
		now:    time.Now,
	}, nil
}

// Evaluate generates an answer for s and scores it. Generation and scoring
// failures are reported in the result with a zero score, not as an error.
func (e *Evaluator) Evaluate(ctx context.Context, s Sample, method Method) Result {
	r := Result{Name: s.Name, Prompt: s.Prompt, Expected: s.Expected, Metadata: s.Metadata}
	fail := func(err error) Result {
		r.Score = 0
		r.Error = err.Error()
		r.Metrics = map[string]any{"error": r.Error}
		r.Timestamp = e.now()
		e.logger.Warn("sample failed", zap.String("sample", s.Name), zap.Error(err))
		return r
	}

	prompt, err := render(s.Prompt, s.Vars)
	if err != nil {
		return fail(errmodel.Value("render_failed", "cannot render prompt", map[string]any{"sample": s.Name}))
	}
	r.Prompt = prompt

	start := e.now()
	out, err := e.model.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.gen)
	if err != nil {
		return fail(err)
	}
	r.LatencyMS = float64(e.now().Sub(start).Microseconds()) / 1000
	r.Actual = out.Text

	score, metrics, err := Score(ctx, method, out.Text, s.Expected, e.emb)
	if err != nil {
		return fail(err)
	}
	r.Score, r.Metrics, r.Timestamp = score, metrics, e.now()
	return r
}

// EvaluateDataset evaluates every sample in order with the same method.
func (e *Evaluator) EvaluateDataset(ctx context.Context, samples []Sample, method Method) (Summary, []Result, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Summary{}, nil, err
	}
	if method == MethodSemanticSimilarity && e.emb == nil {
		return Summary{}, nil, errmodel.Configuration("missing_embedder", "semantic_similarity needs an embedding provider", nil)
	}
	e.logger.Info("starting evaluation", zap.Int("samples", len(samples)), zap.String("method", string(method)))
	start := e.now()
	results := make([]Result, 0, len(samples))
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return Summary{}, results, err
		}
		results = append(results, e.Evaluate(ctx, s, method))
	}
	sum := Summarize(results)
	sum.TotalTimeMS = float64(e.now().Sub(start).Microseconds()) / 1000
	e.logger.Info("evaluation finished",
		zap.Float64("avg_score", sum.AvgScore),
		zap.Int("failed", sum.FailedSamples),
	)
	return sum, results, nil
}

// Summarize aggregates results. TotalTimeMS is left to the caller.
func Summarize(results []Result) Summary {
	s := Summary{TotalSamples: len(results), Scores: make([]float64, len(results)), Metrics: map[string]float64{}}
	if len(results) == 0 {
		return s
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	var total, latency float64
	for i, r := range results {
		s.Scores[i] = r.Score
		total += r.Score
		latency += r.LatencyMS
		if r.Error != "" {
			s.FailedSamples++
		}
		for k, v := range r.Metrics {
			f, ok := metricValue(v)
			if !ok {
				continue
			}
			sums[k] += f
			counts[k]++
		}
	}
	for k, v := range sums {
		s.Metrics[k] = v / float64(counts[k])
	}
	s.AvgScore = total / float64(len(results))
	s.AvgLatencyMS = latency / float64(len(results))
	return s
}

func metricValue(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// WriteResults saves a run as JSON with "summary" and "results" keys.
func WriteResults(p string, sum Summary, results []Result) error {
	return writeJSONFile(p, map[string]any{"summary": sum, "results": results})
}

// WriteComparison saves a comparison as JSON.
func WriteComparison(p string, c *Comparison) error {
	return writeJSONFile(p, c)
}

func writeJSONFile(p string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errmodel.System("encode_failed", "cannot encode results", nil, err)
	}
	if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
		return errmodel.System("write_failed", "cannot write results", map[string]any{"path": p}, err)
	}
	return nil
}
