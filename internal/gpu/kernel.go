//go:build !nogpu

package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout bounds the wait for one dispatch.
const fenceTimeout = 10 * time.Second

// kernel is one compute pipeline. Binding 0 is a uniform block, followed by
// the read-only inputs and then the read-write outputs.
type kernel struct {
	name    string
	inputs  int
	outputs int

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func newKernel(d hal.Device, name, source string, inputs, outputs int) (*kernel, error) {
	k := &kernel{name: name, inputs: inputs, outputs: outputs}
	var err error
	k.shader, err = d.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", name, err)
	}

	entries := []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
	}
	for i := range inputs + outputs {
		typ := gputypes.BufferBindingTypeReadOnlyStorage
		if i >= inputs {
			typ = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	k.bindLayout, err = d.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		k.destroy(d)
		return nil, fmt.Errorf("create %s bind group layout: %w", name, err)
	}

	k.pipeLayout, err = d.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: name + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		k.destroy(d)
		return nil, fmt.Errorf("create %s pipeline layout: %w", name, err)
	}

	k.pipeline, err = d.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: name + "_pipeline", Layout: k.pipeLayout,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: "main"},
	})
	if err != nil {
		k.destroy(d)
		return nil, fmt.Errorf("create %s compute pipeline: %w", name, err)
	}
	return k, nil
}

func (k *kernel) destroy(d hal.Device) {
	if k.pipeline != nil {
		d.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		d.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		d.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		d.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}

// dispatch runs k once over the given workgroup grid and returns the first
// outSizes[i] bytes of every output buffer. All buffers live for this call
// only.
func (d *halDevice) dispatch(k *kernel, uniform []byte, inputs [][]byte, outSizes []int, groups [3]uint32) ([][]byte, error) {
	if len(inputs) != k.inputs || len(outSizes) != k.outputs {
		return nil, fmt.Errorf("%s: %d inputs and %d outputs, want %d and %d",
			k.name, len(inputs), len(outSizes), k.inputs, k.outputs)
	}
	var buffers []hal.Buffer
	defer func() {
		for _, b := range buffers {
			d.device.DestroyBuffer(b)
		}
	}()
	create := func(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
		b, err := d.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			return nil, fmt.Errorf("create %s buffer: %w", label, err)
		}
		buffers = append(buffers, b)
		return b, nil
	}

	uniformSize := uint64(len(uniform))
	ub, err := create(k.name+"_params", uniformSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	d.queue.WriteBuffer(ub, 0, uniform)
	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uniformSize}},
	}

	for i, data := range inputs {
		size := bufferSize(len(data))
		b, err := create(fmt.Sprintf("%s_in%d", k.name, i), size, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			d.queue.WriteBuffer(b, 0, data)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(entries)),
			Resource: gputypes.BufferBinding{Buffer: b.NativeHandle(), Offset: 0, Size: size},
		})
	}

	outputs := make([]hal.Buffer, len(outSizes))
	staging := make([]hal.Buffer, len(outSizes))
	for i, n := range outSizes {
		size := bufferSize(n)
		outputs[i], err = create(fmt.Sprintf("%s_out%d", k.name, i), size,
			gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst)
		if err != nil {
			return nil, err
		}
		staging[i], err = create(fmt.Sprintf("%s_staging%d", k.name, i), size,
			gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
		if err != nil {
			return nil, err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(entries)),
			Resource: gputypes.BufferBinding{Buffer: outputs[i].NativeHandle(), Offset: 0, Size: size},
		})
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: k.name + "_bind", Layout: k.bindLayout, Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", k.name, err)
	}
	defer d.device.DestroyBindGroup(bg)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: k.name + "_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(k.name); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.name + "_pass"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups[0], groups[1], groups[2])
	pass.End()
	for i, n := range outSizes {
		encoder.CopyBufferToBuffer(outputs[i], staging[i], []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: bufferSize(n)},
		})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return nil, fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	results := make([][]byte, len(outSizes))
	for i, n := range outSizes {
		buf := make([]byte, bufferSize(n))
		if err := d.queue.ReadBuffer(staging[i], 0, buf); err != nil {
			return nil, fmt.Errorf("readback %s output %d: %w", k.name, i, err)
		}
		results[i] = buf[:n]
	}
	return results, nil
}

// workgroups returns the number of groups of size covering n items.
func workgroups(n, size int) uint32 {
	return uint32((n + size - 1) / size)
}
