package vectorindex

import (
	"math"
	"sort"
)

// CosineSimilarity 计算两个向量的余弦相似度，即 1 - cosine distance。
// 任一向量为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankHits 过滤低于 minScore 的命中，按分数降序稳定排序并截断。
// hits 需按插入顺序传入，稳定排序保证同分时先插入者在前。
func rankHits(hits []Hit, minScore float64, maxResults int) []Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= minScore {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if maxResults > 0 && len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return kept
}
