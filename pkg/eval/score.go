package eval

import (
	"context"
	"math"
	"strings"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Score rates actual against expected in [0, 1]. emb is only used by
// semantic_similarity.
func Score(ctx context.Context, method Method, actual, expected string, emb embedding.Embedder) (float64, map[string]any, error) {
	switch method {
	case MethodExactMatch:
		ok := strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected))
		return boolScore(ok), map[string]any{"exact_match": ok}, nil
	case MethodContains:
		ok := strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
		return boolScore(ok), map[string]any{"contains": ok}, nil
	case MethodLengthCheck:
		return lengthRatio(actual, expected)
	case MethodSemanticSimilarity:
		return semantic(ctx, emb, actual, expected)
	}
	_, err := ParseMethod(string(method))
	return 0, nil, err
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// lengthRatio compares word counts; the shorter over the longer.
func lengthRatio(actual, expected string) (float64, map[string]any, error) {
	a, x := len(strings.Fields(actual)), len(strings.Fields(expected))
	if x == 0 {
		return 1, map[string]any{"length_ratio": 1.0}, nil
	}
	ratio := 0.0
	if a > 0 {
		ratio = math.Min(float64(a)/float64(x), float64(x)/float64(a))
	}
	return ratio, map[string]any{"length_ratio": ratio, "actual_length": a, "expected_length": x}, nil
}

// semantic is the cosine similarity of the two embeddings, clamped to [0, 1].
func semantic(ctx context.Context, emb embedding.Embedder, actual, expected string) (float64, map[string]any, error) {
	if emb == nil {
		return 0, nil, errmodel.Configuration("missing_embedder", "semantic_similarity needs an embedding provider", nil)
	}
	vecs, err := emb.Embed(ctx, []string{actual, expected}, nil)
	if err != nil {
		return 0, nil, err
	}
	if err := embedding.CheckCount(emb.Name(), 2, len(vecs)); err != nil {
		return 0, nil, err
	}
	s := math.Max(0, math.Min(1, cosine(vecs[0], vecs[1])))
	return s, map[string]any{"semantic_similarity": s}, nil
}

func cosine(a, b embedding.Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
