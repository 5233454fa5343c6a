package topics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// blobs returns perBlob points scattered around each center.
func blobs(centers [][]float64, perBlob int, spread float64, seed uint64) [][]float64 {
	//nolint:gosec // test data
	rng := rand.New(rand.NewPCG(seed, seed))
	points := make([][]float64, 0, len(centers)*perBlob)

	for _, c := range centers {
		for range perBlob {
			p := make([]float64, len(c))
			for d := range c {
				p[d] = c[d] + (rng.Float64()*2-1)*spread
			}

			points = append(points, p)
		}
	}

	return points
}

func TestCluster_TwoSeparatedBlobs(t *testing.T) {
	points := blobs([][]float64{{0, 0}, {10, 10}}, 20, 0.5, 1)

	c := Cluster(points, ClusterOptions{MinClusterSize: 5, Seed: 42})

	require.Len(t, c.Labels, len(points))
	assert.Equal(t, 2, c.NumTopics())
	assert.Equal(t, 2, c.K)
	assert.Greater(t, c.Silhouette, 0.5)

	first, second := c.Labels[0], c.Labels[20]
	assert.NotEqual(t, first, second)

	for i := range 20 {
		assert.Equal(t, first, c.Labels[i])
		assert.Equal(t, second, c.Labels[20+i])
	}
}

func TestCluster_ReproducibleWithSameSeed(t *testing.T) {
	points := blobs([][]float64{{0, 0, 0}, {5, 0, 0}, {0, 5, 0}}, 15, 1.5, 7)
	opts := ClusterOptions{MinClusterSize: 4, Seed: 42}

	a := Cluster(points, opts)
	b := Cluster(points, opts)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
}

func TestCluster_FewerPointsThanMinSizeAreOutliers(t *testing.T) {
	points := blobs([][]float64{{0, 0}}, 4, 0.1, 3)

	c := Cluster(points, ClusterOptions{MinClusterSize: 15})

	assert.Zero(t, c.NumTopics())

	for _, label := range c.Labels {
		assert.Equal(t, models.OutlierTopicID, label)
	}
}

func TestCluster_Empty(t *testing.T) {
	c := Cluster(nil, ClusterOptions{MinClusterSize: 1})

	assert.Empty(t, c.Labels)
	assert.Zero(t, c.NumTopics())
}

func TestRelabel_SmallClustersBecomeOutliersAndIDsFollowSize(t *testing.T) {
	points := [][]float64{{0}, {0}, {5}, {5}, {5}, {9}}
	assignments := []int{0, 0, 1, 1, 1, 2}

	c := relabel(points, assignments, 3, 2)

	assert.Equal(t, []int{1, 1, 0, 0, 0, models.OutlierTopicID}, c.Labels)
	require.Len(t, c.Centroids, 2)
	assert.InDelta(t, 5.0, c.Centroids[0][0], 1e-9)
	assert.InDelta(t, 0.0, c.Centroids[1][0], 1e-9)
}

func TestFindElbowPoint(t *testing.T) {
	tests := []struct {
		name     string
		k        []int
		inertias []float64
		want     int
	}{
		{"single", []int{1}, []float64{10}, 1},
		{"two candidates, big drop", []int{1, 2}, []float64{100, 10}, 2},
		{"two candidates, small drop", []int{1, 2}, []float64{100, 80}, 1},
		{"clear knee", []int{1, 2, 3, 4, 5}, []float64{100, 20, 15, 12, 10}, 2},
		{"flat", []int{1, 2, 3}, []float64{5, 5, 5}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findElbowPoint(tt.k, tt.inertias))
		})
	}
}
