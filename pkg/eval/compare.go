package eval

import (
	"context"
	"math"
	"slices"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// DefaultCosts are rough USD prices per 1K tokens by provider name.
var DefaultCosts = map[string]float64{
	"bedrock": 0.008,
	"openai":  0.002,
	"ollama":  0,
	"gemini":  0.001,
}

// Candidate is one model taking part in a comparison.
type Candidate struct {
	Name  string
	Model llm.LLM
	// CostPer1K overrides DefaultCosts[Name] when non-nil.
	CostPer1K *float64
}

// ModelResult is one candidate's outcome.
type ModelResult struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Summary      Summary  `json:"summary"`
	AvgLatencyMS float64  `json:"avg_latency_ms"`
	CostEstimate float64  `json:"total_cost_estimate"`
	ErrorRate    float64  `json:"error_rate"`
	Results      []Result `json:"-"`
}

// ComparisonMetrics describes the spread across candidates.
type ComparisonMetrics struct {
	ScoreRange      float64 `json:"score_range"`
	AvgScore        float64 `json:"avg_score"`
	ScoreStd        float64 `json:"score_std"`
	LatencyRangeMS  float64 `json:"latency_range_ms"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	CostRange       float64 `json:"total_cost_range"`
	AvgCost         float64 `json:"avg_cost"`
	ProvidersTested int     `json:"providers_tested"`
}

// Comparison ranks candidates on one dataset.
type Comparison struct {
	Models    []ModelResult     `json:"models"`
	BestModel string            `json:"best_model"`
	BestScore float64           `json:"best_score"`
	Metrics   ComparisonMetrics `json:"comparison_metrics"`
}

// EstimateTokens approximates the dataset size at four characters per token.
func EstimateTokens(samples []Sample) int {
	chars := 0
	for _, s := range samples {
		chars += utf8.RuneCountInString(s.Prompt) + utf8.RuneCountInString(s.Expected)
	}
	return chars / 4
}

// Compare evaluates every candidate on samples and picks the best one by a
// weighted blend: 70% score, 20% latency, 10% cost, each normalized against
// the best candidate.
func Compare(ctx context.Context, candidates []Candidate, samples []Sample, method Method, opts Options) (*Comparison, error) {
	if len(candidates) == 0 {
		return nil, errmodel.Value("no_candidates", "compare needs at least one model", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := EstimateTokens(samples)
	out := &Comparison{Models: make([]ModelResult, 0, len(candidates))}
	for _, c := range candidates {
		ev, err := New(c.Model, opts)
		if err != nil {
			return nil, err
		}
		sum, results, err := ev.EvaluateDataset(ctx, samples, method)
		if err != nil {
			return nil, err
		}
		cost := DefaultCosts[c.Name]
		if c.CostPer1K != nil {
			cost = *c.CostPer1K
		}
		mr := ModelResult{
			Provider:     c.Name,
			Model:        c.Model.Model(),
			Summary:      sum,
			AvgLatencyMS: sum.AvgLatencyMS,
			CostEstimate: float64(tokens) / 1000 * cost,
			Results:      results,
		}
		if sum.TotalSamples > 0 {
			mr.ErrorRate = float64(sum.FailedSamples) / float64(sum.TotalSamples)
		}
		logger.Info("model evaluated",
			zap.String("provider", c.Name),
			zap.Float64("avg_score", sum.AvgScore),
			zap.Float64("avg_latency_ms", mr.AvgLatencyMS),
			zap.Float64("error_rate", mr.ErrorRate),
		)
		out.Models = append(out.Models, mr)
	}
	out.BestModel = bestModel(out.Models)
	for _, m := range out.Models {
		out.BestScore = math.Max(out.BestScore, m.Summary.AvgScore)
	}
	out.Metrics = spread(out.Models)
	return out, nil
}

func bestModel(models []ModelResult) string {
	maxScore := 0.0
	minLatency := math.Inf(1)
	minCost := math.Inf(1)
	for _, m := range models {
		maxScore = math.Max(maxScore, m.Summary.AvgScore)
		if m.AvgLatencyMS > 0 {
			minLatency = math.Min(minLatency, m.AvgLatencyMS)
		}
		minCost = math.Min(minCost, m.CostEstimate)
	}
	if math.IsInf(minLatency, 1) {
		minLatency = 1
	}
	if minCost == 0 {
		minCost = 0.001
	}
	best, bestScore := "", math.Inf(-1)
	for _, m := range models {
		scoreNorm := 0.0
		if maxScore > 0 {
			scoreNorm = m.Summary.AvgScore / maxScore
		}
		latencyNorm := minLatency / math.Max(m.AvgLatencyMS, 1)
		costNorm := minCost / math.Max(m.CostEstimate, 0.001)
		combined := scoreNorm*0.7 + latencyNorm*0.2 + costNorm*0.1
		if combined > bestScore {
			best, bestScore = m.Provider, combined
		}
	}
	return best
}

func spread(models []ModelResult) ComparisonMetrics {
	n := len(models)
	scores := make([]float64, n)
	latencies := make([]float64, n)
	costs := make([]float64, n)
	for i, m := range models {
		scores[i], latencies[i], costs[i] = m.Summary.AvgScore, m.AvgLatencyMS, m.CostEstimate
	}
	avgScore := mean(scores)
	std := 0.0
	if n > 1 {
		for _, s := range scores {
			std += (s - avgScore) * (s - avgScore)
		}
		std = math.Sqrt(std / float64(n-1))
	}
	return ComparisonMetrics{
		ScoreRange:      slices.Max(scores) - slices.Min(scores),
		AvgScore:        avgScore,
		ScoreStd:        std,
		LatencyRangeMS:  slices.Max(latencies) - slices.Min(latencies),
		AvgLatencyMS:    mean(latencies),
		CostRange:       slices.Max(costs) - slices.Min(costs),
		AvgCost:         mean(costs),
		ProvidersTested: n,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	t := 0.0
	for _, x := range xs {
		t += x
	}
	return t / float64(len(xs))
}
