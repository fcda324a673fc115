package splat

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/vellum-gfx/splatcore/engine/renderer"
	"github.com/vellum-gfx/splatcore/engine/renderer/bind_group_provider"
	"github.com/vellum-gfx/splatcore/engine/renderer/pipeline"
	"github.com/vellum-gfx/splatcore/engine/renderer/shader"
)

// Pipeline keys registered by a Renderer. Exported so callers assembling a
// custom frame loop (or inspecting a Pipelines() map) can find them without
// string literals.
const (
	PipelineClearCounters       = "splat_clear_counters"
	PipelineCullBin             = "splat_cull_bin"
	PipelinePrefixSum           = "splat_prefix_sum"
	PipelineResetBucketPositions = "splat_reset_bucket_positions"
	PipelineScatter             = "splat_scatter"
	PipelineGlobalSort          = "splat_global_sort"
	PipelineWriteIndirectArgs   = "splat_write_indirect_args"
	PipelineRasterize           = "splat_rasterize"
)

// VertexCountPerSplat mirrors the WGSL constant of the same purpose:
// each Gaussian draws as a 4-vertex triangle-strip quad.
const VertexCountPerSplat = 4

// Renderer owns every GPU resource derived from a Store's record count and
// drives one splat set through the full per-frame pipeline described in the
// data-flow model: Cull & Bin, Prefix Sum, Scatter, Global Sort, Indirect
// Draw, Rasterize.
//
// A Renderer is single-owner and single-threaded by design: unlike the
// engine's mesh/animator path, there is no CPU-side fan-out here (no
// per-instance animation or skinning prep to parallelize), so driving it
// from the engine's worker pool would add synchronization cost for no
// concurrency benefit. Register (once) with RegisterPipelines, call Prepare
// each frame to upload camera state, DispatchCompute to run the full
// cull/sort chain, and Draw to issue the indirect draw call.
type Renderer interface {
	// RegisterPipelines registers every compute and render pipeline this
	// splat set needs with r, and allocates every derived per-frame GPU
	// buffer at the Store's current SplatCount. Call once after the Store
	// has been loaded and before the first Prepare/DispatchCompute/Draw.
	RegisterPipelines(r renderer.Renderer) error

	// Prepare uploads the camera uniform and the current model matrix for
	// this frame. Must be called once per frame before DispatchCompute.
	//
	// Parameters:
	//   - r: the engine renderer to write buffers through
	//   - view, proj: column-major view and projection matrices
	//   - cameraPos: world-space camera origin
	//   - screenWidth, screenHeight: current viewport size in pixels
	Prepare(r renderer.Renderer, view, proj [16]float32, cameraPos [3]float32, screenWidth, screenHeight float32) error

	// DispatchCompute issues the full cull/sort/indirect-write chain for this
	// frame: Clear, Cull & Bin, Prefix Sum, Reset Bucket Positions, Scatter,
	// the bitonic sort step loop, and the indirect-args write. Must be
	// called within the engine's BeginComputeFrame/EndComputeFrame block,
	// after Prepare.
	DispatchCompute(r renderer.Renderer)

	// Draw issues the indirect, non-indexed draw call reading the instance
	// count the last DispatchCompute call produced. Must be called within
	// the engine's BeginFrame/EndFrame block.
	Draw(r renderer.Renderer) error

	// Release frees every GPU resource this Renderer owns.
	Release()
}

type rendererImpl struct {
	store  Store
	config *Config

	capacity uint32 // N, the live SplatCount captured at RegisterPipelines time
	padded   uint32 // P, next power of two >= capacity, used by the bitonic sort

	// group0 providers carry the small uniform buffers each stage needs.
	cullGroup0    bind_group_provider.BindGroupProvider // camera (0), cull params (1)
	sortGroup0    bind_group_provider.BindGroupProvider // sort step params (0)
	rasterGroup0  bind_group_provider.BindGroupProvider // camera (0), raster params (1)

	// group1 providers carry the storage arrays. Each stage only declares
	// the subset of bindings its WGSL file references, so each gets its own
	// provider/layout, but physical buffers are created once and shared
	// across providers via SetBuffer — see RegisterPipelines.
	primaryGroup1 bind_group_provider.BindGroupProvider // gaussian_records, visible_*, bucket_counts, visible_count
	prefixGroup1  bind_group_provider.BindGroupProvider // bucket_counts, bucket_offsets
	resetGroup1   bind_group_provider.BindGroupProvider // bucket_offsets, bucket_positions
	scatterGroup1 bind_group_provider.BindGroupProvider // visible_*, bucket_positions, visible_count, sorted_*
	sortGroup1    bind_group_provider.BindGroupProvider // visible_count, sorted_*
	indirectGroup1 bind_group_provider.BindGroupProvider // visible_count, indirect_args
	rasterGroup1  bind_group_provider.BindGroupProvider  // gaussian_records, sorted_indices

	clearShader, cullShader, prefixShader, resetShader, scatterShader, sortShader, indirectShader shader.Shader
	vertexShader, fragmentShader shader.Shader
}

// NewRenderer creates a Renderer bound to store and config. The store must
// already have been loaded (SplatCount() > 0) before RegisterPipelines is
// called.
//
// Parameters:
//   - store: the splat set's record store
//   - config: the culling/rendering configuration
//
// Returns:
//   - Renderer: a new, unregistered Renderer instance
func NewRenderer(store Store, config *Config) Renderer {
	return &rendererImpl{store: store, config: config}
}

func nextPowerOfTwo(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (rd *rendererImpl) RegisterPipelines(r renderer.Renderer) error {
	n := rd.store.SplatCount()
	if n == 0 {
		return errors.Wrap(ErrEmptyStore, "splat renderer register pipelines")
	}
	rd.capacity = n
	rd.padded = nextPowerOfTwo(n)

	rd.clearShader = shader.NewShader(PipelineClearCounters, shader.ShaderTypeCompute, "splat/assets/clear_counters.wgsl")
	rd.cullShader = shader.NewShader(PipelineCullBin, shader.ShaderTypeCompute, "splat/assets/cull_bin.wgsl")
	rd.prefixShader = shader.NewShader(PipelinePrefixSum, shader.ShaderTypeCompute, "splat/assets/prefix_sum.wgsl")
	rd.resetShader = shader.NewShader(PipelineResetBucketPositions, shader.ShaderTypeCompute, "splat/assets/reset_bucket_positions.wgsl")
	rd.scatterShader = shader.NewShader(PipelineScatter, shader.ShaderTypeCompute, "splat/assets/scatter.wgsl")
	rd.sortShader = shader.NewShader(PipelineGlobalSort, shader.ShaderTypeCompute, "splat/assets/global_sort.wgsl")
	rd.indirectShader = shader.NewShader(PipelineWriteIndirectArgs, shader.ShaderTypeCompute, "splat/assets/indirect_draw.wgsl")
	rd.vertexShader = shader.NewShader(PipelineRasterize, shader.ShaderTypeVertex, "splat/assets/splat_raster.wgsl")
	rd.fragmentShader = shader.NewShader(PipelineRasterize, shader.ShaderTypeFragment, "splat/assets/splat_raster.wgsl")

	for key, cs := range map[string]shader.Shader{
		PipelineClearCounters:        rd.clearShader,
		PipelineCullBin:              rd.cullShader,
		PipelinePrefixSum:            rd.prefixShader,
		PipelineResetBucketPositions: rd.resetShader,
		PipelineScatter:              rd.scatterShader,
		PipelineGlobalSort:           rd.sortShader,
		PipelineWriteIndirectArgs:    rd.indirectShader,
	} {
		cp := pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs))
		if err := r.RegisterPipelines(cp); err != nil {
			return errors.Wrapf(err, "splat renderer: register compute pipeline %q", key)
		}
	}

	rp := pipeline.NewPipeline(PipelineRasterize, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(rd.vertexShader),
		pipeline.WithFragmentShader(rd.fragmentShader),
		pipeline.WithTopology(wgpu.PrimitiveTopologyTriangleStrip),
		pipeline.WithCullMode(wgpu.CullModeNone),
		pipeline.WithDepthTestEnabled(false),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithBlendEnabled(true),
		pipeline.WithBlendState(&wgpu.BlendState{
			Color: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
			Alpha: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
		}),
	)
	if err := r.RegisterPipelines(rp); err != nil {
		return errors.Wrap(err, "splat renderer: register rasterize pipeline")
	}

	if err := rd.initBuffers(r); err != nil {
		return err
	}

	if err := rd.uploadRecords(r); err != nil {
		return err
	}

	return nil
}

// initBuffers walks the storage-buffer dependency chain: the first provider
// to reference a binding allocates its physical buffer; every later
// provider that needs the same binding copies the *wgpu.Buffer reference
// via SetBuffer before its own InitBindGroup call, so InitBindGroup reuses
// it instead of allocating a second buffer for the same data.
func (rd *rendererImpl) initBuffers(r renderer.Renderer) error {
	n := uint64(rd.capacity)
	p := uint64(rd.padded)

	rd.cullGroup0 = bind_group_provider.NewBindGroupProvider("splat-cull-group0")
	cullSizes := map[int]uint64{0: 224, 1: 32}
	if err := r.InitBindGroup(rd.cullGroup0, rd.cullShader.BindGroupLayoutDescriptor(0), nil, cullSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init cull group0")
	}

	rd.rasterGroup0 = bind_group_provider.NewBindGroupProvider("splat-raster-group0")
	rd.rasterGroup0.SetBuffer(0, rd.cullGroup0.Buffer(0))
	rasterSizes := map[int]uint64{1: 16}
	if err := r.InitBindGroup(rd.rasterGroup0, rd.vertexShader.BindGroupLayoutDescriptor(0), nil, rasterSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init raster group0")
	}

	rd.sortGroup0 = bind_group_provider.NewBindGroupProvider("splat-sort-group0")
	sortSizes := map[int]uint64{0: 16}
	if err := r.InitBindGroup(rd.sortGroup0, rd.sortShader.BindGroupLayoutDescriptor(0), nil, sortSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init sort group0")
	}

	rd.primaryGroup1 = bind_group_provider.NewBindGroupProvider("splat-primary-group1")
	primarySizes := map[int]uint64{
		0: n * uint64(RecordSize), // gaussian_records
		1: n * 4,                  // visible_indices
		2: n * 4,                  // visible_depths
		3: n * 4,                  // visible_buckets
		4: NumBuckets * 4,         // bucket_counts
		7: 4,                      // visible_count
	}
	if err := r.InitBindGroup(rd.primaryGroup1, rd.cullShader.BindGroupLayoutDescriptor(1), nil, primarySizes); err != nil {
		return errors.Wrap(err, "splat renderer: init primary group1")
	}

	rd.prefixGroup1 = bind_group_provider.NewBindGroupProvider("splat-prefix-group1")
	rd.prefixGroup1.SetBuffer(4, rd.primaryGroup1.Buffer(4))
	prefixSizes := map[int]uint64{5: NumBuckets * 4}
	if err := r.InitBindGroup(rd.prefixGroup1, rd.prefixShader.BindGroupLayoutDescriptor(1), nil, prefixSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init prefix group1")
	}

	rd.resetGroup1 = bind_group_provider.NewBindGroupProvider("splat-reset-group1")
	rd.resetGroup1.SetBuffer(5, rd.prefixGroup1.Buffer(5))
	resetSizes := map[int]uint64{6: NumBuckets * 4}
	if err := r.InitBindGroup(rd.resetGroup1, rd.resetShader.BindGroupLayoutDescriptor(1), nil, resetSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init reset group1")
	}

	rd.scatterGroup1 = bind_group_provider.NewBindGroupProvider("splat-scatter-group1")
	rd.scatterGroup1.SetBuffer(1, rd.primaryGroup1.Buffer(1))
	rd.scatterGroup1.SetBuffer(2, rd.primaryGroup1.Buffer(2))
	rd.scatterGroup1.SetBuffer(3, rd.primaryGroup1.Buffer(3))
	rd.scatterGroup1.SetBuffer(6, rd.resetGroup1.Buffer(6))
	rd.scatterGroup1.SetBuffer(7, rd.primaryGroup1.Buffer(7))
	scatterSizes := map[int]uint64{8: p * 4, 9: p * 4}
	if err := r.InitBindGroup(rd.scatterGroup1, rd.scatterShader.BindGroupLayoutDescriptor(1), nil, scatterSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init scatter group1")
	}

	rd.sortGroup1 = bind_group_provider.NewBindGroupProvider("splat-sort-group1")
	rd.sortGroup1.SetBuffer(7, rd.primaryGroup1.Buffer(7))
	rd.sortGroup1.SetBuffer(8, rd.scatterGroup1.Buffer(8))
	rd.sortGroup1.SetBuffer(9, rd.scatterGroup1.Buffer(9))
	if err := r.InitBindGroup(rd.sortGroup1, rd.sortShader.BindGroupLayoutDescriptor(1), nil, nil); err != nil {
		return errors.Wrap(err, "splat renderer: init sort group1")
	}

	rd.indirectGroup1 = bind_group_provider.NewBindGroupProvider("splat-indirect-group1")
	rd.indirectGroup1.SetBuffer(7, rd.primaryGroup1.Buffer(7))
	indirectSizes := map[int]uint64{10: IndirectDrawArgsSize}
	if err := r.InitBindGroup(rd.indirectGroup1, rd.indirectShader.BindGroupLayoutDescriptor(1), nil, indirectSizes); err != nil {
		return errors.Wrap(err, "splat renderer: init indirect group1")
	}

	rd.rasterGroup1 = bind_group_provider.NewBindGroupProvider("splat-raster-group1")
	rd.rasterGroup1.SetBuffer(0, rd.primaryGroup1.Buffer(0))
	rd.rasterGroup1.SetBuffer(8, rd.scatterGroup1.Buffer(8))
	if err := r.InitBindGroup(rd.rasterGroup1, rd.vertexShader.BindGroupLayoutDescriptor(1), nil, nil); err != nil {
		return errors.Wrap(err, "splat renderer: init raster group1")
	}

	return nil
}

func (rd *rendererImpl) uploadRecords(r renderer.Renderer) error {
	data := MarshalGaussianRecords(rd.store.Records())
	r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: rd.primaryGroup1, Binding: 0, Offset: 0, Data: data},
	})

	cull := GPUCullParams{
		NearPlane:          rd.config.NearPlane(),
		FarPlane:           rd.config.FarPlane(),
		PixelThreshold:     rd.config.PixelThreshold(),
		AlphaCullThreshold: rd.config.AlphaCullThreshold(),
		ModelMaxScale:      rd.store.ModelMaxScale(),
		TotalCount:         rd.capacity,
	}
	raster := GPURasterParams{
		LowPassFilter:      rd.config.LowPassFilter(),
		AlphaCullThreshold: rd.config.AlphaCullThreshold(),
		SHMode:             uint32(rd.config.SHMode()),
	}
	r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: rd.cullGroup0, Binding: 1, Offset: 0, Data: cull.Marshal()},
		{Provider: rd.rasterGroup0, Binding: 1, Offset: 0, Data: raster.Marshal()},
	})
	return nil
}

func (rd *rendererImpl) Prepare(r renderer.Renderer, view, proj [16]float32, cameraPos [3]float32, screenWidth, screenHeight float32) error {
	if rd.primaryGroup1 == nil {
		return errors.New("splat renderer: Prepare called before RegisterPipelines")
	}

	camera := GPUCameraUniform{
		View:       view,
		Proj:       proj,
		Model:      rd.store.ModelMatrix(),
		CameraPos:  cameraPos,
		ScreenSize: [2]float32{screenWidth, screenHeight},
	}
	r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: rd.cullGroup0, Binding: 0, Offset: 0, Data: camera.Marshal()},
	})
	return nil
}

func (rd *rendererImpl) DispatchCompute(r renderer.Renderer) {
	if rd.primaryGroup1 == nil {
		return
	}

	groups32 := [3]uint32{(rd.capacity + WorkgroupSize - 1) / WorkgroupSize, 1, 1}
	bucketGroups := [3]uint32{1, 1, 1} // 128 buckets == one workgroup of 128

	r.DispatchComputeGroups(PipelineClearCounters, []bind_group_provider.BindGroupProvider{nil, rd.primaryGroup1}, bucketGroups)
	r.DispatchComputeGroups(PipelineCullBin, []bind_group_provider.BindGroupProvider{rd.cullGroup0, rd.primaryGroup1}, groups32)
	r.DispatchComputeGroups(PipelinePrefixSum, []bind_group_provider.BindGroupProvider{nil, rd.prefixGroup1}, bucketGroups)
	r.DispatchComputeGroups(PipelineResetBucketPositions, []bind_group_provider.BindGroupProvider{nil, rd.resetGroup1}, bucketGroups)
	r.DispatchComputeGroups(PipelineScatter, []bind_group_provider.BindGroupProvider{nil, rd.scatterGroup1}, groups32)

	rd.dispatchSort(r)

	r.DispatchComputeGroups(PipelineWriteIndirectArgs, []bind_group_provider.BindGroupProvider{nil, rd.indirectGroup1}, [3]uint32{1, 1, 1})
}

func (rd *rendererImpl) Draw(r renderer.Renderer) error {
	if rd.primaryGroup1 == nil {
		return errors.New("splat renderer: Draw called before RegisterPipelines")
	}

	indirectBuf := rd.indirectGroup1.Buffer(10)
	if indirectBuf == nil {
		return fmt.Errorf("splat renderer: indirect args buffer not initialized")
	}
	if err := r.DrawNonIndexedIndirect(PipelineRasterize, indirectBuf, []bind_group_provider.BindGroupProvider{rd.rasterGroup0, rd.rasterGroup1}); err != nil {
		return errors.Wrap(err, "splat renderer: draw")
	}
	return nil
}

// dispatchSort submits the bitonic sort's full (k, j) step sequence over the
// padded capacity P. Every step in the sequence, like every other pass this
// frame, is recorded into the single command encoder BeginComputeFrame
// opened and EndComputeFrame submits, so the whole sort already lands in one
// GPU submission per frame rather than needing its own sub-batching.
func (rd *rendererImpl) dispatchSort(r renderer.Renderer) {
	groups32 := [3]uint32{(rd.padded + WorkgroupSize - 1) / WorkgroupSize, 1, 1}

	for k := uint32(2); k <= rd.padded; k <<= 1 {
		for j := k / 2; j > 0; j >>= 1 {
			params := GPUSortStepParams{K: k, J: j, Capacity: rd.padded}
			r.WriteBuffers([]bind_group_provider.BufferWrite{
				{Provider: rd.sortGroup0, Binding: 0, Offset: 0, Data: params.Marshal()},
			})
			r.DispatchComputeGroups(PipelineGlobalSort, []bind_group_provider.BindGroupProvider{rd.sortGroup0, rd.sortGroup1}, groups32)
		}
	}
}

// Release frees every GPU resource this Renderer owns. Several providers
// share physical buffers created by an earlier provider (see initBuffers),
// so shared bindings are cleared from the downstream provider's buffer map
// before Release — each physical buffer is freed exactly once, by whichever
// provider originally allocated it.
func (rd *rendererImpl) Release() {
	clearShared := func(p bind_group_provider.BindGroupProvider, bindings ...int) {
		if p == nil {
			return
		}
		for _, b := range bindings {
			p.SetBuffer(b, nil)
		}
	}

	clearShared(rd.prefixGroup1, 4)
	clearShared(rd.resetGroup1, 5)
	clearShared(rd.scatterGroup1, 1, 2, 3, 6, 7)
	clearShared(rd.sortGroup1, 7, 8, 9)
	clearShared(rd.indirectGroup1, 7)
	clearShared(rd.rasterGroup1, 0, 8)
	clearShared(rd.rasterGroup0, 0)

	providers := []bind_group_provider.BindGroupProvider{
		rd.cullGroup0, rd.sortGroup0, rd.rasterGroup0,
		rd.primaryGroup1, rd.prefixGroup1, rd.resetGroup1, rd.scatterGroup1, rd.sortGroup1, rd.indirectGroup1, rd.rasterGroup1,
	}
	for _, p := range providers {
		if p != nil {
			p.Release()
		}
	}
}
