package runtime

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/kernels"
	"github.com/hicann/fftsplus/model"
)

// wideTask is n independent compute contexts of four logical slots each.
func wideTask(n int) *model.Task {
	desc := &model.Task{Name: "wide"}
	for i := 0; i < n; i++ {
		desc.Contexts = append(desc.Contexts, &model.Compute{
			Header:      model.Header{ID: uint32(i + 1)},
			Engine:      model.KindAICore,
			KernelNames: []string{"k"},
			Inputs:      []model.Address{model.Logical(uint64(i) * 0x100), model.Logical(uint64(i)*0x100 + 0x40)},
			Outputs:     []model.Address{model.Logical(uint64(i)*0x100 + 0x80)},
			Workspaces:  []model.Address{model.Tagged(uint64(i)*0x20, core.MemWorkspace)},
		})
	}
	return desc
}

func benchOptions() TaskOptions {
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts := DefaultTaskOptions()
	opts.Logger = log
	opts.Bases = core.Bases{core.MemFeatureMap: 0x10000, core.MemWorkspace: 0x20000}
	return opts
}

func benchRegistry(b *testing.B) *kernels.Registry {
	reg := kernels.NewRegistry()
	if err := reg.Register("k", kernels.Handle{Entry: 0x1000}); err != nil {
		b.Fatal(err)
	}
	return reg
}

func BenchmarkBuild_64(b *testing.B) {
	desc := wideTask(64)
	reg := benchRegistry(b)
	opts := benchOptions()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		task := NewTask(desc, reg, nil, opts)
		if err := task.prepare(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUpdateHostArgs_64(b *testing.B) {
	task := NewTask(wideTask(64), benchRegistry(b), nil, benchOptions())
	if err := task.prepare(context.Background()); err != nil {
		b.Fatal(err)
	}
	bases := core.Bases{core.MemFeatureMap: 0x30000, core.MemWorkspace: 0x40000}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := task.UpdateHostArgs(bases); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildAll_8x64(b *testing.B) {
	reg := benchRegistry(b)
	opts := benchOptions()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tasks := make([]*Task, 8)
		for j := range tasks {
			tasks[j] = NewTask(wideTask(64), reg, nil, opts)
		}
		if err := BuildAll(context.Background(), tasks...); err != nil {
			b.Fatal(err)
		}
	}
}
