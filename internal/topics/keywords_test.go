package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizer_LowercasesAndDropsStopWords(t *testing.T) {
	tok, err := NewTokenizer()
	require.NoError(t, err)

	assert.Equal(t, []string{"museum", "art"}, tok.Tokens("The Museum and the ART of 2024!"))
	assert.Empty(t, tok.Tokens("  "))
}

func TestClassTFIDF_FavoursDistinctiveTerms(t *testing.T) {
	scores := ClassTFIDF([][]string{
		{"art", "art", "museum"},
		{"museum", "garden"},
	})

	require.Len(t, scores, 2)
	assert.Greater(t, scores[0]["art"], scores[0]["museum"])
	assert.Greater(t, scores[1]["garden"], scores[1]["museum"])
	assert.Equal(t, []string{"art", "museum"}, TopTerms(scores[0], 5))
	assert.Equal(t, []string{"garden"}, TopTerms(scores[1], 1))
}

func TestClassTFIDF_EmptyInput(t *testing.T) {
	assert.Empty(t, ClassTFIDF(nil))

	scores := ClassTFIDF([][]string{{}, {}})
	require.Len(t, scores, 2)
	assert.Empty(t, scores[0])
}

func TestTopTerms_TiesBreakAlphabetically(t *testing.T) {
	got := TopTerms(map[string]float64{"b": 1, "a": 1, "c": 2}, 3)

	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestRerankBySimilarity(t *testing.T) {
	vectors := map[string][]float64{
		"near": {1, 0.1},
		"far":  {0, 1},
		"mid":  {1, 1},
	}

	got := RerankBySimilarity([]string{"far", "unknown", "mid", "near"}, vectors, []float64{1, 0}, 3)

	assert.Equal(t, []string{"near", "mid", "far"}, got)
}

func TestRepresentativeDocs_ClosestDistinct(t *testing.T) {
	texts := []string{"a", "b", "a", "c", "d"}
	points := [][]float64{{0.1}, {0.5}, {0.05}, {3}, {0.2}}

	got := RepresentativeDocs(texts, points, []int{0, 1, 2, 3, 4}, []float64{0}, 3)

	assert.Equal(t, []string{"a", "d", "b"}, got)
}

func TestTopicLabel(t *testing.T) {
	assert.Equal(t, "0_art_museum_garden_bench", TopicLabel(0, []string{"art", "museum", "garden", "bench", "extra"}))
	assert.Equal(t, "-1_noise", TopicLabel(-1, []string{"noise"}))
	assert.Equal(t, "3", TopicLabel(3, nil))
}
