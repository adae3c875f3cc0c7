// Package match scores a marketplace listing against a banned product,
// producing a confidence value in [0,1] and a flag decision.
package match

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"RecallSentinel/internal/model"
)

// DefaultThreshold is the confidence score at which a listing is flagged
// for review when no threshold is configured.
const DefaultThreshold = 0.6

// Factor weights. Name similarity carries the primary weight, model-number
// containment is a strong secondary signal, manufacturer similarity is
// tertiary.
const (
	weightName         = 0.50
	weightModel        = 0.30
	weightManufacturer = 0.20
)

// FactorScore is one factor's contribution to the final confidence.
type FactorScore struct {
	Name     string
	Raw      float64 // in [0,1]
	Weight   float64
	Weighted float64
}

// Result is the outcome of scoring one listing against one product.
type Result struct {
	Factors    []FactorScore
	Confidence float64
	Flagged    bool
}

// Analyzer scores listings against banned products. It holds no mutable
// state; identical inputs always produce identical output.
type Analyzer struct {
	Threshold float64
}

// NewAnalyzer returns an Analyzer with the given flag threshold, falling
// back to DefaultThreshold when the value is out of (0,1].
func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Analyzer{Threshold: threshold}
}

// Evaluate computes the weighted confidence for a listing/product pair.
// Missing listing fields contribute zero to their factor rather than
// failing the computation.
func (a *Analyzer) Evaluate(l *model.Listing, p *model.BannedProduct) Result {
	f1 := scoreNameSimilarity(l, p)
	f2 := scoreModelContainment(l, p)
	f3 := scoreManufacturer(l, p)

	confidence := f1.Weighted + f2.Weighted + f3.Weighted
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		Factors:    []FactorScore{f1, f2, f3},
		Confidence: confidence,
		Flagged:    confidence >= a.Threshold,
	}
}

// Score returns just the confidence value.
func (a *Analyzer) Score(l *model.Listing, p *model.BannedProduct) float64 {
	return a.Evaluate(l, p).Confidence
}

// scoreNameSimilarity compares the product name against the listing title
// and description, keeping the better of the two.
func scoreNameSimilarity(l *model.Listing, p *model.BannedProduct) FactorScore {
	name := normalize(p.Name)
	raw := 0.0
	if name != "" {
		title := tokenSimilarity(name, normalize(l.Title))
		desc := tokenSimilarity(name, normalize(l.Description))
		raw = title
		if desc > raw {
			raw = desc
		}
	}
	return FactorScore{Name: "name_similarity", Raw: raw, Weight: weightName, Weighted: raw * weightName}
}

// scoreModelContainment looks for the product's model numbers inside the
// listing text. Exact containment scores 1.0; a long model-number prefix
// (4+ characters) scores 0.5.
func scoreModelContainment(l *model.Listing, p *model.BannedProduct) FactorScore {
	text := squash(l.Title) + " " + squash(l.Description)
	raw := 0.0
	for _, m := range p.ModelNumbers {
		mn := squash(m)
		if mn == "" {
			continue
		}
		if strings.Contains(text, mn) {
			raw = 1.0
			break
		}
		if len(mn) > 4 && strings.Contains(text, mn[:4]) && raw < 0.5 {
			raw = 0.5
		}
	}
	return FactorScore{Name: "model_containment", Raw: raw, Weight: weightModel, Weighted: raw * weightModel}
}

// scoreManufacturer compares the product manufacturer against the listing
// seller and any manufacturer-sized token window of the title/description,
// using Jaro-Winkler which tolerates small spelling variations.
func scoreManufacturer(l *model.Listing, p *model.BannedProduct) FactorScore {
	manufacturer := normalize(p.Manufacturer)
	raw := 0.0
	if manufacturer != "" {
		candidates := []string{normalize(l.Seller)}
		n := len(strings.Fields(manufacturer))
		candidates = append(candidates, tokenWindows(normalize(l.Title), n)...)
		candidates = append(candidates, tokenWindows(normalize(l.Description), n)...)
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if s := smetrics.JaroWinkler(manufacturer, c, 0.7, 4); s > raw {
				raw = s
			}
		}
	}
	return FactorScore{Name: "manufacturer_similarity", Raw: raw, Weight: weightManufacturer, Weighted: raw * weightManufacturer}
}

// tokenSimilarity scores how well every token of needle is covered by
// haystack tokens, using normalized Levenshtein distance per token pair.
func tokenSimilarity(needle, haystack string) float64 {
	nTokens := strings.Fields(needle)
	hTokens := strings.Fields(haystack)
	if len(nTokens) == 0 || len(hTokens) == 0 {
		return 0
	}
	var total float64
	for _, nt := range nTokens {
		best := 0.0
		for _, ht := range hTokens {
			if s := levenshteinSimilarity(nt, ht); s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(nTokens))
}

func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	s := 1 - float64(d)/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}

// tokenWindows returns every n-token window of s joined by single spaces.
func tokenWindows(s string, n int) []string {
	tokens := strings.Fields(s)
	if n < 1 || len(tokens) < n {
		return nil
	}
	windows := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		windows = append(windows, strings.Join(tokens[i:i+n], " "))
	}
	return windows
}

// normalize lowercases and strips everything but letters, digits and spaces.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// squash normalizes and removes all spaces, so "BA-100" matches "ba 100".
func squash(s string) string {
	return strings.ReplaceAll(normalize(s), " ", "")
}
