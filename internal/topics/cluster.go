package topics

import (
	"cmp"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// ClusterOptions configures Cluster.
type ClusterOptions struct {
	// MinClusterSize is the smallest group reported as a topic; smaller groups become outliers.
	MinClusterSize int
	// MaxK caps the number of clusters tried by the elbow search (default 20).
	MaxK int
	// MaxIterations caps Lloyd iterations per k-means run (default 100).
	MaxIterations int
	// Seed makes k-means++ initialization, and so the assignments, reproducible.
	Seed int64
}

// Clustering is the outcome of Cluster.
type Clustering struct {
	// Labels holds one topic ID per input point; models.OutlierTopicID marks outliers.
	Labels []int
	// Centroids holds the centroid of each topic, indexed by topic ID.
	Centroids [][]float64
	// K is the number of k-means clusters chosen by the elbow search, before outlier filtering.
	K int
	// Silhouette is the mean silhouette of the chosen clustering (0 when not computed).
	Silhouette float64
}

// NumTopics returns the number of non-outlier topics.
func (c *Clustering) NumTopics() int {
	return len(c.Centroids)
}

const silhouetteMaxPoints = 5000

// Cluster groups points with seeded k-means++, choosing k by the elbow of the inertia curve.
// Clusters smaller than MinClusterSize are relabelled as outliers. The remaining topics are
// numbered from 0 by descending size.
func Cluster(points [][]float64, opts ClusterOptions) *Clustering {
	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = 1
	}

	if opts.MaxK <= 0 {
		opts.MaxK = 20
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}

	n := len(points)
	labels := make([]int, n)

	for i := range labels {
		labels[i] = models.OutlierTopicID
	}

	if n < opts.MinClusterSize || n == 0 {
		return &Clustering{Labels: labels}
	}

	maxK := min(opts.MaxK, n/opts.MinClusterSize)
	maxK = max(maxK, 1)

	kValues := make([]int, 0, maxK)
	inertias := make([]float64, 0, maxK)
	runs := make(map[int][]int, maxK)

	for k := 1; k <= maxK; k++ {
		assignments, centroids := kMeans(points, k, opts.MaxIterations, opts.Seed+int64(k))
		kValues = append(kValues, k)
		inertias = append(inertias, inertia(points, assignments, centroids))
		runs[k] = assignments
	}

	k := findElbowPoint(kValues, inertias)
	assignments := runs[k]

	result := relabel(points, assignments, k, opts.MinClusterSize)
	result.K = k

	if n <= silhouetteMaxPoints {
		result.Silhouette = silhouette(points, result.Labels)
	}

	slog.Debug("Clustered points", "points", n, "k", k, "topics", result.NumTopics(), "silhouette", result.Silhouette)

	return result
}

// relabel drops clusters below minSize to the outlier label and renumbers the rest by descending size.
func relabel(points [][]float64, assignments []int, k, minSize int) *Clustering {
	sizes := make([]int, k)
	for _, a := range assignments {
		sizes[a]++
	}

	order := make([]int, 0, k)

	for c, size := range sizes {
		if size >= minSize {
			order = append(order, c)
		}
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(sizes[b], sizes[a])
	})

	newID := make(map[int]int, len(order))
	for id, c := range order {
		newID[c] = id
	}

	labels := make([]int, len(assignments))
	for i, a := range assignments {
		if id, ok := newID[a]; ok {
			labels[i] = id
		} else {
			labels[i] = models.OutlierTopicID
		}
	}

	return &Clustering{Labels: labels, Centroids: centroidsFor(points, labels, len(order))}
}

func centroidsFor(points [][]float64, labels []int, topics int) [][]float64 {
	if len(points) == 0 || topics == 0 {
		return nil
	}

	dim := len(points[0])
	centroids := make([][]float64, topics)
	counts := make([]int, topics)

	for t := range centroids {
		centroids[t] = make([]float64, dim)
	}

	for i, p := range points {
		t := labels[i]
		if t == models.OutlierTopicID {
			continue
		}

		counts[t]++
		for d := range dim {
			centroids[t][d] += p[d]
		}
	}

	for t := range centroids {
		if counts[t] > 0 {
			for d := range dim {
				centroids[t][d] /= float64(counts[t])
			}
		}
	}

	return centroids
}

// kMeans runs Lloyd's algorithm from a k-means++ initialization seeded by seed.
func kMeans(points [][]float64, k, maxIterations int, seed int64) ([]int, [][]float64) {
	dim := len(points[0])
	//nolint:gosec // G404: clustering needs reproducibility, not unpredictability
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	centroids := initializeCentroidsKMeansPlusPlus(points, k, rng)
	assignments := make([]int, len(points))

	for iter := range maxIterations {
		changed := false

		for i, p := range points {
			nearest := findNearestCentroid(p, centroids)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)

		for c := range sums {
			sums[c] = make([]float64, dim)
		}

		for i, p := range points {
			c := assignments[i]
			counts[c]++

			for d := range dim {
				sums[c][d] += p[d]
			}
		}

		for c := range k {
			if counts[c] == 0 {
				continue
			}

			for d := range dim {
				sums[c][d] /= float64(counts[c])
			}

			centroids[c] = sums[c]
		}
	}

	return assignments, centroids
}

// initializeCentroidsKMeansPlusPlus picks k starting centroids, each with probability proportional
// to its squared distance from the nearest centroid already chosen.
func initializeCentroidsKMeansPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, slices.Clone(points[rng.IntN(n)]))

	distances := make([]float64, n)

	for len(centroids) < k {
		var total float64

		for i, p := range points {
			minDist := math.MaxFloat64
			for _, c := range centroids {
				minDist = min(minDist, squaredDistance(p, c))
			}

			distances[i] = minDist
			total += minDist
		}

		if total == 0 {
			// Fewer distinct points than k: reuse one.
			centroids = append(centroids, slices.Clone(points[rng.IntN(n)]))

			continue
		}

		target := rng.Float64() * total
		selected := n - 1

		var cum float64

		for i, d := range distances {
			cum += d
			if cum >= target {
				selected = i

				break
			}
		}

		centroids = append(centroids, slices.Clone(points[selected]))
	}

	return centroids
}

func findNearestCentroid(p []float64, centroids [][]float64) int {
	minDist := math.MaxFloat64
	nearest := 0

	for i, c := range centroids {
		if d := squaredDistance(p, c); d < minDist {
			minDist = d
			nearest = i
		}
	}

	return nearest
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return sum
}

// inertia is the within-cluster sum of squared distances.
func inertia(points [][]float64, assignments []int, centroids [][]float64) float64 {
	var total float64
	for i, p := range points {
		total += squaredDistance(p, centroids[assignments[i]])
	}

	return total
}

// silhouette returns the mean silhouette over non-outlier points, in [-1, 1]. Higher is better.
func silhouette(points [][]float64, labels []int) float64 {
	members := make(map[int][]int)

	for i, l := range labels {
		if l != models.OutlierTopicID {
			members[l] = append(members[l], i)
		}
	}

	if len(members) < 2 {
		return 0
	}

	var (
		total float64
		count int
	)

	for i, l := range labels {
		if l == models.OutlierTopicID {
			continue
		}

		a := meanDistance(points, i, members[l])
		b := math.MaxFloat64

		for other, idx := range members {
			if other != l {
				b = min(b, meanDistance(points, i, idx))
			}
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return total / float64(count)
}

func meanDistance(points [][]float64, i int, idx []int) float64 {
	var (
		sum float64
		n   int
	)

	for _, j := range idx {
		if j == i {
			continue
		}

		sum += math.Sqrt(squaredDistance(points[i], points[j]))
		n++
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// findElbowPoint returns the k whose inertia lies farthest from the line joining the first and
// last points of the curve, after scaling both axes to [0, 1] (kneedle). With two candidates the
// larger k wins only if it at least halves the inertia.
func findElbowPoint(kValues []int, inertias []float64) int {
	n := len(kValues)

	switch n {
	case 1:
		return kValues[0]
	case 2:
		if inertias[1] <= inertias[0]/2 {
			return kValues[1]
		}

		return kValues[0]
	}

	xMin, xMax := float64(kValues[0]), float64(kValues[n-1])
	yMin, yMax := slices.Min(inertias), slices.Max(inertias)

	if xMax == xMin || yMax == yMin {
		return kValues[0]
	}

	scale := func(i int) (float64, float64) {
		return (float64(kValues[i]) - xMin) / (xMax - xMin), (inertias[i] - yMin) / (yMax - yMin)
	}

	x1, y1 := scale(0)
	x2, y2 := scale(n - 1)
	den := math.Sqrt((y2-y1)*(y2-y1) + (x2-x1)*(x2-x1))

	maxDist := 0.0
	elbowIdx := 0

	for i := 1; i < n-1; i++ {
		x0, y0 := scale(i)

		dist := math.Abs((y2-y1)*x0-(x2-x1)*y0+x2*y1-y2*x1) / den
		if dist > maxDist {
			maxDist = dist
			elbowIdx = i
		}
	}

	return kValues[elbowIdx]
}
