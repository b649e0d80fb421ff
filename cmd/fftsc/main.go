package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/compiler"
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/kernels"
	"github.com/hicann/fftsplus/model"
	"github.com/hicann/fftsplus/runtime"
)

// fileSubmitter writes each distributed descriptor to dir/<name>.ffts.
type fileSubmitter struct {
	dir string
	log *logrus.Entry
}

func (s fileSubmitter) Submit(ctx context.Context, d *runtime.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, d.Name+".ffts")
	if err := os.WriteFile(path, d.Bytes, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	s.log.WithFields(logrus.Fields{"path": path, "size": len(d.Bytes)}).Info("descriptor written")
	return nil
}

func main() {
	var (
		verbose  = flag.Bool("v", false, "Enable debug logging")
		outDir   = flag.String("o", "", "Write descriptors into this directory")
		handles  = flag.String("kernels", "", "Kernel handles as name=entry[:prefetch],...")
		bases    = flag.String("bases", "", "Base addresses as kind=addr,... (featuremap, weight, workspace, args)")
		align    = flag.Int("align", core.CacheLineSize, "Descriptor buffer alignment")
		workers  = flag.Int("workers", goruntime.NumCPU(), "Number of tasks built in parallel")
		blocking = flag.Bool("aicpu-blocking", false, "Target supports blocking AICPU contexts")
		version  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("fftsc - FFTS+ task lowering v1.0.0")
		fmt.Printf("Built with Go %s\n", goruntime.Version())
		return
	}

	files := flag.Args()
	if len(files) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <task.json>...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	reg := kernels.NewRegistry()
	hs, err := kernels.ParseHandles(*handles)
	if err != nil {
		log.Fatalf("Invalid -kernels: %v", err)
	}
	if err := reg.RegisterAll(hs); err != nil {
		log.Fatalf("Registering kernels: %v", err)
	}
	log.WithField("kernels", reg.Names()).Debug("kernel registry loaded")
	b, err := core.ParseBases(*bases)
	if err != nil {
		log.Fatalf("Invalid -bases: %v", err)
	}

	opts := runtime.DefaultTaskOptions()
	opts.DescriptorAlign = *align
	opts.Bases = b
	opts.Logger = log
	opts.Compiler.Capabilities = compiler.Capabilities{AicpuBlocking: *blocking}

	tasks := make([]*runtime.Task, 0, len(files))
	for _, path := range files {
		desc, err := loadTask(path)
		if err != nil {
			log.Fatalf("Failed to load task: %v", err)
		}
		tasks = append(tasks, runtime.NewTask(desc, reg, nil, opts))
	}

	ctx := context.Background()
	if err := runtime.BuildAllLimit(ctx, *workers, tasks...); err != nil {
		log.WithField("code", core.CodeOf(err)).Fatalf("Build failed: %v", err)
	}

	for _, t := range tasks {
		report(t)
		if *outDir != "" {
			if err := t.Distribute(ctx, fileSubmitter{dir: *outDir, log: log.WithField("cmd", "fftsc")}); err != nil {
				log.Fatalf("Distribute failed: %v", err)
			}
		}
	}
}

func loadTask(path string) (*model.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	desc, err := model.DecodeTask(f)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	if desc.Name == "" {
		desc.Name = filepath.Base(path)
	}
	return desc, nil
}

// report prints the layout and refresh instructions of a finalized task.
func report(t *runtime.Task) {
	d := t.Descriptor()
	normal, level1, aicpu := t.TableCounts()
	fmt.Printf("task %s: %d contexts, %d bytes\n", d.Name, len(t.Lowered()), len(d.Bytes))
	for _, r := range d.Layout.Regions() {
		fmt.Printf("  %-9s offset %6d size %6d\n", r.Name, r.Offset, r.Size)
	}
	fmt.Printf("  table: %d normal, %d level1, %d aicpu\n", normal, level1, aicpu)
	counts := map[args.RefreshKind]int{}
	for _, r := range d.Refresh {
		counts[r.Kind]++
	}
	fmt.Printf("  refresh: %d table, %d level1, %d aicpu\n", counts[args.RefreshTable], counts[args.RefreshLevel1], counts[args.RefreshAicpu])
	for _, tag := range t.PersistTags() {
		fmt.Printf("  persist %s -> %d\n", tag.Tensor, tag.ID)
	}
}
