package store

import (
	"sort"
)

// DefaultRRFConstant is the standard reciprocal-rank-fusion smoothing
// parameter; k=60 is the empirically validated cross-domain default.
const DefaultRRFConstant = 60

// fusedHit accumulates both legs' contributions for one document id.
type fusedHit struct {
	id           string
	rrfScore     float64
	vecScore     float64
	keywordScore float64
	vecRank      int
	keywordRank  int
}

// rrfFuse combines the keyword and vector result lists:
//
//	score(d) = Σ 1 / (k + rank_i)
//
// Documents present in both lists accumulate both contributions and
// sort ahead of single-leg hits at equal score.
func rrfFuse(keyword []*KeywordResult, vec []*VectorResult, k int) []*fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]*fusedHit, len(keyword)+len(vec))

	get := func(id string) *fusedHit {
		if h, ok := scores[id]; ok {
			return h
		}
		h := &fusedHit{id: id}
		scores[id] = h
		return h
	}

	for rank, r := range keyword {
		h := get(r.ID)
		h.keywordScore = r.Score
		h.keywordRank = rank + 1
		h.rrfScore += 1.0 / float64(k+rank+1)
	}
	for rank, r := range vec {
		h := get(r.ID)
		h.vecScore = float64(r.Similarity)
		h.vecRank = rank + 1
		h.rrfScore += 1.0 / float64(k+rank+1)
	}

	out := make([]*fusedHit, 0, len(scores))
	for _, h := range scores {
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rrfScore != b.rrfScore {
			return a.rrfScore > b.rrfScore
		}
		aBoth := a.vecRank > 0 && a.keywordRank > 0
		bBoth := b.vecRank > 0 && b.keywordRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		if a.vecScore != b.vecScore {
			return a.vecScore > b.vecScore
		}
		return a.id < b.id
	})

	return out
}
