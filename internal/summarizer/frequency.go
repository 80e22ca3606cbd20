// Package summarizer builds extractive plan digests and picks the sentence
// of a chunk that best answers a query.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const DefaultMaxSentences = 5

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`(?s)[^.!?]+[.!?]+`)
)

// FrequencySummarizer ranks sentences by normalised term frequency with
// stopwords removed.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: planningStopwords()}
}

// Summarize returns up to maxSentences top-ranked sentences in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	maxF := 0.0
	for i, sent := range sentences {
		tokens[i] = s.contentWords(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / maxF
		}
		// Dampen long sentences
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) contentWords(text string) []string {
	var out []string
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// Sentences splits text into trimmed sentences. Trailing text without
// terminal punctuation forms a final sentence.
func Sentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := strings.Join(strings.Fields(text[loc[0]:loc[1]]), " "); s != "" {
			out = append(out, s)
		}
		end = loc[1]
	}
	if rest := strings.Join(strings.Fields(text[end:]), " "); rest != "" {
		out = append(out, rest)
	}
	return out
}

// BestSentence returns the sentences of text and the index of the one
// sharing the most distinct words with query. The index is -1 when query
// has no words or text has no sentences.
func BestSentence(text, query string) ([]string, int) {
	sentences := Sentences(text)
	q := wordSet(query)
	if len(q) == 0 || len(sentences) == 0 {
		return sentences, -1
	}
	best, bestScore := 0, -1
	for i, sent := range sentences {
		score := 0
		for w := range wordSet(sent) {
			if _, ok := q[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return sentences, best
}

func wordSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// planningStopwords extends the usual English list with boilerplate that
// appears in nearly every planning document.
func planningStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "than", "so", "such", "can", "will", "would", "should", "must", "may", "also", "which",
		"where", "there", "their", "they", "other", "any", "all", "not", "no", "has", "have", "had",
		"page", "section", "paragraph", "see", "figure", "table",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
