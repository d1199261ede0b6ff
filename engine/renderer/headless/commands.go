package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type DrawArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op       string
	Handle   metadata.Handle
	Extent   metadata.Extent
	Sets     []metadata.DescriptorSet
	Draw     DrawArgs
	Recorded bool
}

// CommandRecording holds the commands of the last recording of a command
// buffer.
type CommandRecording struct {
	recording bool
	Commands  []Command
}

// Draws returns the recorded draw commands.
func (r *CommandRecording) Draws() []DrawArgs {
	var out []DrawArgs
	for _, c := range r.Commands {
		if c.Op == "DrawIndexed" {
			out = append(out, c.Draw)
		}
	}
	return out
}

// Ops returns the recorded command names.
func (r *CommandRecording) Ops() []string {
	out := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		out = append(out, c.Op)
	}
	return out
}

// Recording returns what was recorded into cb.
func (b *Backend) Recording(cb metadata.CommandBuffer) *CommandRecording {
	return b.commandBuffers[cb]
}

func (b *Backend) record(cb metadata.CommandBuffer, cmd Command) {
	b.call(cmd.Op)
	rec, ok := b.commandBuffers[cb]
	if !ok || !rec.recording {
		core.LogError("headless: %s recorded into command buffer %d outside of a recording", cmd.Op, cb)
		return
	}
	cmd.Recorded = true
	rec.Commands = append(rec.Commands, cmd)
}

func (b *Backend) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	b.call("AllocateCommandBuffer")
	h := metadata.CommandBuffer(b.handle())
	b.commandBuffers[h] = &CommandRecording{}
	return h, nil
}

func (b *Backend) FreeCommandBuffer(cb metadata.CommandBuffer) {
	b.call("FreeCommandBuffer")
	delete(b.commandBuffers, cb)
}

func (b *Backend) BeginCommandBuffer(cb metadata.CommandBuffer) error {
	b.call("BeginCommandBuffer")
	rec, ok := b.commandBuffers[cb]
	if !ok {
		return fmt.Errorf("headless: begin of unknown command buffer %d", cb)
	}
	if rec.recording {
		return fmt.Errorf("headless: command buffer %d already recording", cb)
	}
	rec.recording = true
	rec.Commands = nil
	return nil
}

func (b *Backend) EndCommandBuffer(cb metadata.CommandBuffer) error {
	b.call("EndCommandBuffer")
	rec, ok := b.commandBuffers[cb]
	if !ok || !rec.recording {
		return fmt.Errorf("headless: end of command buffer %d that is not recording", cb)
	}
	rec.recording = false
	return nil
}

func (b *Backend) BeginRenderPass(cb metadata.CommandBuffer, pass metadata.RenderPass, framebuffer metadata.Framebuffer, extent metadata.Extent, clearColor [4]float32) {
	b.record(cb, Command{Op: "BeginRenderPass", Handle: metadata.Handle(framebuffer), Extent: extent})
}

func (b *Backend) EndRenderPass(cb metadata.CommandBuffer) {
	b.record(cb, Command{Op: "EndRenderPass"})
}

// Recorder

func (b *Backend) BindPipeline(cb metadata.CommandBuffer, pipeline metadata.Pipeline) {
	b.record(cb, Command{Op: "BindPipeline", Handle: metadata.Handle(pipeline)})
}

func (b *Backend) SetViewport(cb metadata.CommandBuffer, extent metadata.Extent) {
	b.record(cb, Command{Op: "SetViewport", Extent: extent})
}

func (b *Backend) SetScissor(cb metadata.CommandBuffer, extent metadata.Extent) {
	b.record(cb, Command{Op: "SetScissor", Extent: extent})
}

func (b *Backend) BindDescriptorSets(cb metadata.CommandBuffer, layout metadata.PipelineLayout, sets []metadata.DescriptorSet) {
	b.record(cb, Command{Op: "BindDescriptorSets", Handle: metadata.Handle(layout), Sets: append([]metadata.DescriptorSet(nil), sets...)})
}

func (b *Backend) BindVertexBuffer(cb metadata.CommandBuffer, buf metadata.Buffer) {
	b.record(cb, Command{Op: "BindVertexBuffer", Handle: metadata.Handle(buf)})
}

func (b *Backend) BindIndexBuffer(cb metadata.CommandBuffer, buf metadata.Buffer) {
	b.record(cb, Command{Op: "BindIndexBuffer", Handle: metadata.Handle(buf)})
}

func (b *Backend) DrawIndexed(cb metadata.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	b.record(cb, Command{Op: "DrawIndexed", Draw: DrawArgs{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	}})
}
