package splat

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The compute kernels in splat/assets/*.wgsl are not runnable on this host.
// The functions below are a line-for-line CPU mirror of cull_bin.wgsl,
// prefix_sum.wgsl, scatter.wgsl, and global_sort.wgsl, used only by this
// test file to check the algorithm described in the data model against the
// testable properties and end-to-end scenarios it specifies. Production
// code never calls these; the GPU is the only real implementation.

type simCamera struct {
	view, proj   mgl32.Mat4
	screenW, screenH float32
	modelMaxScale    float32
}

func lookAtCamera(eye, center, up mgl32.Vec3, fovY, aspect, near, far, screenW, screenH float32) simCamera {
	view := mgl32.LookAtV(eye, center, up)
	proj := mgl32.Mat4(PerspectiveProjection(fovY, aspect, near, far))
	return simCamera{view: view, proj: proj, screenW: screenW, screenH: screenH, modelMaxScale: 1}
}

type simResult struct {
	visibleIdx    []uint32
	visibleDepth  []uint32
	visibleBucket []uint32
	bucketCounts  [NumBuckets]uint32
}

// simCullBin mirrors cull_bin.wgsl exactly, in load order (no atomic
// reordering simulated, since per-bucket final order is recovered by sort
// regardless of scatter arrival order).
func simCullBin(records []GaussianRecord, model mgl32.Mat4, cam simCamera, cfg *Config) simResult {
	var res simResult
	for index, g := range records {
		worldPos := model.Mul4x1(mgl32.Vec4{g.Mean[0], g.Mean[1], g.Mean[2], 1}).Vec3()
		viewPos := cam.view.Mul4x1(worldPos.Vec4(1)).Vec3()
		z := -viewPos.Z()

		if z < cfg.NearPlane() || z > cfg.FarPlane() {
			continue
		}

		maxScale := g.Scale[0]
		if g.Scale[1] > maxScale {
			maxScale = g.Scale[1]
		}
		if g.Scale[2] > maxScale {
			maxScale = g.Scale[2]
		}
		rWorld := maxScale * cam.modelMaxScale * 3.0

		maxProjScale := cam.proj.At(0, 0)
		if cam.proj.At(1, 1) > maxProjScale {
			maxProjScale = cam.proj.At(1, 1)
		}
		rNdc := rWorld * maxProjScale / z

		clip := cam.proj.Mul4x1(viewPos.Vec4(1))
		ndcX := clip.X() / clip.W()
		ndcY := clip.Y() / clip.W()
		if float32(math.Abs(float64(ndcX))) > 1.0+rNdc || float32(math.Abs(float64(ndcY))) > 1.0+rNdc {
			continue
		}

		maxScreen := cam.screenW
		if cam.screenH > maxScreen {
			maxScreen = cam.screenH
		}
		rPx := rNdc * maxScreen * 0.5
		if rPx < cfg.PixelThreshold() {
			continue
		}

		if g.Opacity < 0.004 {
			continue
		}

		bucketID := BucketID(z, cfg.NearPlane(), cfg.FarPlane(), NumBuckets)
		normalized := (z - cfg.NearPlane()) / (cfg.FarPlane() - cfg.NearPlane())
		quantKey := PackQuantizedDepth(normalized, uint32(index))

		res.visibleIdx = append(res.visibleIdx, uint32(index))
		res.visibleDepth = append(res.visibleDepth, quantKey)
		res.visibleBucket = append(res.visibleBucket, bucketID)
		res.bucketCounts[bucketID]++
	}
	return res
}

// simExclusivePrefixSum mirrors prefix_sum.wgsl's Hillis-Steele scan.
func simExclusivePrefixSum(counts [NumBuckets]uint32) [NumBuckets]uint32 {
	var inclusive [NumBuckets]uint32
	copy(inclusive[:], counts[:])
	for stride := 1; stride < NumBuckets; stride *= 2 {
		var next [NumBuckets]uint32
		copy(next[:], inclusive[:])
		for i := stride; i < NumBuckets; i++ {
			next[i] = inclusive[i] + inclusive[i-stride]
		}
		inclusive = next
	}
	var offsets [NumBuckets]uint32
	for i := 1; i < NumBuckets; i++ {
		offsets[i] = inclusive[i-1]
	}
	return offsets
}

// simScatter mirrors scatter.wgsl: each visible entry claims the next free
// slot within its bucket's range. Claim order here is load order, which is
// one valid interleaving among the nondeterministic atomic orders the real
// pass may produce; every property asserted below holds for any order.
func simScatter(res simResult, offsets [NumBuckets]uint32) (sortedIdx, sortedDepth []uint32) {
	visibleCount := uint32(len(res.visibleIdx))
	sortedIdx = make([]uint32, visibleCount)
	sortedDepth = make([]uint32, visibleCount)
	var cursor [NumBuckets]uint32
	for i := range res.visibleIdx {
		b := res.visibleBucket[i]
		dest := offsets[b] + cursor[b]
		cursor[b]++
		sortedIdx[dest] = res.visibleIdx[i]
		sortedDepth[dest] = res.visibleDepth[i]
	}
	return sortedIdx, sortedDepth
}

// simBitonicSort sorts the live prefix into descending key order the way
// global_sort.wgsl does: it pads the slices to the next power of two,
// runs simGlobalSortVirtualized over the padded copy with visibleCount =
// len(depth), and copies the first len(depth) entries back.
func simBitonicSort(idx, depth []uint32) {
	n := len(depth)
	p := 1
	for p < n {
		p *= 2
	}
	paddedIdx := make([]uint32, p)
	paddedDepth := make([]uint32, p)
	copy(paddedIdx, idx)
	copy(paddedDepth, depth)
	simGlobalSortVirtualized(paddedIdx, paddedDepth, n)
	copy(idx, paddedIdx[:n])
	copy(depth, paddedDepth[:n])
}

// sentinelIndex mirrors global_sort.wgsl's SENTINEL_INDEX: the original
// index substituted for an out-of-range (>= visibleCount) slot. It never
// denotes a real Gaussian.
const sentinelIndex = ^uint32(0)

// simGlobalSortVirtualized mirrors global_sort.wgsl's fixed compare-exchange
// step over the real, persistent-across-frames sorted_indices/sorted_depths
// buffers (capacity = len(depth), fixed at the padded P computed once from
// the store's total count). Unlike simBitonicSort above, this operates on
// buffers that may still hold a previous frame's real, nonzero leftovers
// past visibleCount — exactly the condition the GPU buffers are in every
// frame, since scatter only ever rewrites [0, visibleCount). The first step
// (k = 2, j = 1) reads every out-of-range side as key 0 / sentinelIndex and
// writes both sides back, replacing the stale tail with padding; later
// steps compare and move physical values, so no stale value reaches a slot
// the current frame's indirect draw will read.
func simGlobalSortVirtualized(idx, depth []uint32, visibleCount int) {
	p := len(depth)
	for k := 2; k <= p; k *= 2 {
		for j := k / 2; j >= 1; j /= 2 {
			firstStep := k == 2 && j == 1
			for i := 0; i < p; i++ {
				partner := i ^ j
				if partner <= i || partner >= p {
					continue
				}

				iValid := !firstStep || i < visibleCount
				jValid := !firstStep || partner < visibleCount

				keyI, idxI := uint32(0), sentinelIndex
				if iValid {
					keyI, idxI = depth[i], idx[i]
				}
				keyJ, idxJ := uint32(0), sentinelIndex
				if jValid {
					keyJ, idxJ = depth[partner], idx[partner]
				}

				descendingBlock := (i & k) == 0
				var needsSwap bool
				if descendingBlock {
					needsSwap = keyI < keyJ
				} else {
					needsSwap = keyI > keyJ
				}

				if needsSwap {
					depth[i], idx[i] = keyJ, idxJ
					depth[partner], idx[partner] = keyI, idxI
				} else if firstStep {
					depth[i], idx[i] = keyI, idxI
					depth[partner], idx[partner] = keyJ, idxJ
				}
			}
		}
	}
}

// TestGlobalSort_DoesNotLeakStaleDataAcrossFrames reproduces the real GPU
// buffer lifecycle across two frames on persistent, padded-capacity slices:
// frame A fills every slot with real data, frame B culls down to far fewer
// visible Gaussians so scatter only rewrites a short prefix, leaving frame
// A's real, nonzero values sitting past the new visibleCount. The fixed
// global_sort must never let one of those leftovers end up inside frame B's
// [0, visibleCount) range.
func TestGlobalSort_DoesNotLeakStaleDataAcrossFrames(t *testing.T) {
	capacity := 8
	idx := make([]uint32, capacity)
	depth := make([]uint32, capacity)
	for i := 0; i < capacity; i++ {
		idx[i] = uint32(i)
		depth[i] = PackQuantizedDepth(float32(i)/float32(capacity), uint32(i))
	}
	simGlobalSortVirtualized(idx, depth, capacity)

	frameBVisible := 3
	idx[0], depth[0] = 100, PackQuantizedDepth(0.9, 100)
	idx[1], depth[1] = 101, PackQuantizedDepth(0.5, 101)
	idx[2], depth[2] = 102, PackQuantizedDepth(0.1, 102)

	simGlobalSortVirtualized(idx, depth, frameBVisible)

	frameBIndices := map[uint32]bool{100: true, 101: true, 102: true}
	for i := 0; i < frameBVisible; i++ {
		assert.True(t, frameBIndices[idx[i]], "slot %d holds index %d leaked from a previous frame", i, idx[i])
	}
	for i := 0; i < frameBVisible-1; i++ {
		assert.GreaterOrEqual(t, depth[i], depth[i+1])
	}
}

func runPipeline(records []GaussianRecord, model mgl32.Mat4, cam simCamera, cfg *Config) (sortedIdx, sortedDepth []uint32, bucketCounts [NumBuckets]uint32) {
	res := simCullBin(records, model, cam, cfg)
	offsets := simExclusivePrefixSum(res.bucketCounts)
	sortedIdx, sortedDepth = simScatter(res, offsets)
	simBitonicSort(sortedIdx, sortedDepth)
	return sortedIdx, sortedDepth, res.bucketCounts
}

func identityCamera(screenW, screenH float32) simCamera {
	return lookAtCamera(
		mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0},
		float32(math.Pi/3), screenW/screenH, 0.1, 1000, screenW, screenH,
	)
}

func makeGaussian(mean [3]float32, scale float32, opacity float32) GaussianRecord {
	return GaussianRecord{
		Mean:     mean,
		Scale:    [3]float32{scale, scale, scale},
		Rotation: [4]float32{1, 0, 0, 0},
		ColorDC:  [3]float32{1, 1, 1},
		Opacity:  opacity,
	}
}

// Scenario 1: two Gaussians, one in front of the other.
func TestPipeline_TwoGaussiansOrderedFarthestFirst(t *testing.T) {
	records := []GaussianRecord{
		makeGaussian([3]float32{0, 0, 0}, 0.1, 1.0),
		makeGaussian([3]float32{0, 0, 1}, 0.1, 1.0),
	}
	cam := identityCamera(1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())

	require.Len(t, sortedIdx, 2)
	assert.Equal(t, []uint32{0, 1}, sortedIdx, "index 0 is farther from the camera at +5 on Z")
}

// Scenario 2: opacity below threshold.
func TestPipeline_OpacityBelowThresholdCulled(t *testing.T) {
	records := []GaussianRecord{makeGaussian([3]float32{0, 0, 0}, 0.1, 0.001)}
	cam := identityCamera(1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	assert.Empty(t, sortedIdx)
}

// Scenario 3: off-screen Gaussian.
func TestPipeline_OffscreenCulled(t *testing.T) {
	records := []GaussianRecord{makeGaussian([3]float32{1000, 1000, 0}, 0.1, 1.0)}
	cam := identityCamera(1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	assert.Empty(t, sortedIdx)
}

// Scenario 4: N = 128 Gaussians in a line along -Z.
func TestPipeline_LineOfGaussiansReversedOrder(t *testing.T) {
	var records []GaussianRecord
	for i := 1; i <= 128; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-i)}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())

	require.Len(t, sortedIdx, 128)
	want := make([]uint32, 128)
	for i := range want {
		want[i] = uint32(127 - i)
	}
	assert.Equal(t, want, sortedIdx, "farthest (highest index, z=-128) first")
}

// Scenario 5: stability for Gaussians sharing a depth.
func TestPipeline_StabilityAmongEqualDepths(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 512; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, 0}, 0.01, 1.0))
	}
	cam := identityCamera(1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	require.Len(t, sortedIdx, 512)

	// Within any run of 256 consecutive original indices sharing the same
	// quantized depth, smaller original index precedes larger (per the
	// 8-bit tie-break tail).
	for i := 0; i < len(sortedIdx)-1; i++ {
		a, b := sortedIdx[i], sortedIdx[i+1]
		if a/256 == b/256 {
			assert.Less(t, a, b, "equal-depth entries within one 256-wide tie-break group must stay ascending by original index")
		}
	}
}

// Scenario 6: transform test, rotate 90 degrees around Y through the origin.
func TestPipeline_TransformRotatesMeanAroundPivot(t *testing.T) {
	model := BuildPivotedModelMatrix([3]float32{0, 0, 0}, [3]float32{0, float32(math.Pi / 2), 0}, [3]float32{1, 1, 1}, [3]float32{0, 0, 0})
	m := mgl32.Mat4(model)
	worldPos := m.Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	assert.InDelta(t, 0, worldPos.X(), 1e-4)
	assert.InDelta(t, 0, worldPos.Y(), 1e-4)
	assert.InDelta(t, -1, worldPos.Z(), 1e-4)
}

func TestPipeline_VisibleCountNeverExceedsN(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 50; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-i)}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	assert.LessOrEqual(t, len(sortedIdx), len(records))
}

func TestPipeline_BucketCountsSumToVisibleCount(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 300; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-(i%40 + 1))}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	res := simCullBin(records, mgl32.Ident4(), cam, NewConfig())

	var sum uint32
	for _, c := range res.bucketCounts {
		sum += c
	}
	assert.Equal(t, uint32(len(res.visibleIdx)), sum)
}

func TestPrefixSum_OffsetsAreExclusiveAndMonotonic(t *testing.T) {
	var counts [NumBuckets]uint32
	for i := range counts {
		counts[i] = uint32(i % 5)
	}
	offsets := simExclusivePrefixSum(counts)

	assert.Equal(t, uint32(0), offsets[0])
	var running uint32
	for i := 0; i < NumBuckets; i++ {
		assert.Equal(t, running, offsets[i])
		running += counts[i]
	}
}

func TestPrefixSum_IdempotentOnSameCounts(t *testing.T) {
	var counts [NumBuckets]uint32
	for i := range counts {
		counts[i] = uint32(i)
	}
	first := simExclusivePrefixSum(counts)
	second := simExclusivePrefixSum(counts)
	assert.Equal(t, first, second)
}

func TestScatter_ProducesPermutationOfVisibleIndices(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 300; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-(i%40 + 1))}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	res := simCullBin(records, mgl32.Ident4(), cam, NewConfig())
	offsets := simExclusivePrefixSum(res.bucketCounts)
	sortedIdx, _ := simScatter(res, offsets)

	wantSet := map[uint32]bool{}
	for _, v := range res.visibleIdx {
		wantSet[v] = true
	}
	gotSet := map[uint32]bool{}
	for _, v := range sortedIdx {
		assert.False(t, gotSet[v], "duplicate index %d in scattered output", v)
		gotSet[v] = true
	}
	assert.Equal(t, wantSet, gotSet)
}

func TestGlobalSort_NonIncreasingAfterSort(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 300; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-(i%40 + 1))}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	_, sortedDepth, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())

	for i := 0; i < len(sortedDepth)-1; i++ {
		assert.GreaterOrEqual(t, sortedDepth[i], sortedDepth[i+1])
	}
}

func TestGlobalSort_NoOpOnAlreadySortedPrefix(t *testing.T) {
	idx := []uint32{0, 1, 2, 3, 4}
	depth := []uint32{500, 400, 300, 200, 100}
	idxCopy := append([]uint32(nil), idx...)
	depthCopy := append([]uint32(nil), depth...)

	simBitonicSort(idx, depth)
	assert.Equal(t, idxCopy, idx)
	assert.Equal(t, depthCopy, depth)
}

func TestGlobalSort_Determinism(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 257; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-(i%40 + 1))}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)

	idx1, depth1, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	idx2, depth2, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	assert.Equal(t, idx1, idx2)
	assert.Equal(t, depth1, depth2)
}

func TestSurvivalPredicate_MonotoneInPixelThreshold(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 50; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, float32(-(i + 1))}, 0.02, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)

	loose := simCullBin(records, mgl32.Ident4(), cam, NewConfig(WithPixelThreshold(0.1)))
	strict := simCullBin(records, mgl32.Ident4(), cam, NewConfig(WithPixelThreshold(5.0)))
	assert.GreaterOrEqual(t, len(loose.visibleIdx), len(strict.visibleIdx))
}

func TestPipeline_NCountZero(t *testing.T) {
	cam := identityCamera(1920, 1080)
	sortedIdx, sortedDepth, bucketCounts := runPipeline(nil, mgl32.Ident4(), cam, NewConfig())
	assert.Empty(t, sortedIdx)
	assert.Empty(t, sortedDepth)
	for _, c := range bucketCounts {
		assert.Equal(t, uint32(0), c)
	}
}

func TestPipeline_AllGaussiansBehindCamera(t *testing.T) {
	records := []GaussianRecord{
		makeGaussian([3]float32{0, 0, 10}, 0.1, 1.0),
		makeGaussian([3]float32{0, 0, 11}, 0.1, 1.0),
	}
	// Camera at origin looking down -Z; both Gaussians are behind it at +Z.
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	sortedIdx, _, _ := runPipeline(records, mgl32.Ident4(), cam, NewConfig())
	assert.Empty(t, sortedIdx)
}

func TestPipeline_AllGaussiansShareOneBucket(t *testing.T) {
	var records []GaussianRecord
	for i := 0; i < 64; i++ {
		records = append(records, makeGaussian([3]float32{0, 0, -5}, 0.05, 1.0))
	}
	cam := lookAtCamera(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, float32(math.Pi/3), 16.0/9.0, 0.1, 1000, 1920, 1080)
	sortedIdx, sortedDepth, bucketCounts := runPipeline(records, mgl32.Ident4(), cam, NewConfig())

	require.Len(t, sortedIdx, 64)
	nonZero := 0
	for _, c := range bucketCounts {
		if c > 0 {
			nonZero++
			assert.Equal(t, uint32(64), c)
		}
	}
	assert.Equal(t, 1, nonZero, "identical depths must all land in the same bucket")
	for i := 0; i < len(sortedDepth)-1; i++ {
		assert.GreaterOrEqual(t, sortedDepth[i], sortedDepth[i+1])
	}
}
