package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"wcscal/internal/config"
	"wcscal/internal/fsutil"
	"wcscal/internal/pipeline"
	"wcscal/internal/shiftext"
	"wcscal/internal/storage"
)

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

type imageLoader func(path string) (pipeline.Image, error)

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline  pipelineClient
	cfg       *config.Config
	log       *slog.Logger
	store     *storage.Store
	out       io.Writer
	loadImage imageLoader
}

// NewRoot constructs the CLI root.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline:  pl,
		cfg:       cfg,
		log:       logger,
		store:     store,
		out:       os.Stdout,
		loadImage: pipeline.LoadImage,
	}
}

// Run parses args and dispatches to subcommands.
func (r *Root) Run(ctx context.Context, args []string) error {
	cmd := NewRootCmd(r)
	cmd.SetArgs(args)
	cmd.SetOut(r.out)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(ctx)
}

func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	if err := r.enqueue(ctx, job); err != nil {
		return pipeline.Result{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return pipeline.Result{}, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				return res, res.Error
			}
		}
	}
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.pipeline.Submit(job); err != nil {
		return err
	}

	r.log.Debug("job queued", "type", job.Type, "id", job.ID, "inputs", job.Inputs)
	return nil
}

// runJob submits a job for the given inputs and prints its result.
func (r *Root) runJob(ctx context.Context, jobType pipeline.JobType, inputs []string, output string, options map[string]any) error {
	paths, err := absPaths(inputs)
	if err != nil {
		return err
	}
	job := pipeline.Job{
		ID:      newID(string(jobType)),
		Type:    jobType,
		Inputs:  paths,
		Output:  output,
		Options: options,
	}
	res, err := r.enqueueAndWait(ctx, job)
	if err != nil {
		return err
	}
	printMeta(r.out, "", res.Meta)
	return nil
}

func (r *Root) shiftImage(path string) (shiftext.Image, string, error) {
	if r.store == nil {
		return nil, "", fmt.Errorf("no database configured; set paths.database_path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	return r.store.Image(abs), abs, nil
}

// expandInputs replaces directory arguments with the FITS files under them.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil || !info.IsDir() {
			out = append(out, a)
			continue
		}
		files, err := fsutil.ListImages(a)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%s: no FITS images found", a)
		}
		out = append(out, files...)
	}
	return out, nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out[i] = abs
	}
	return out, nil
}

// printMeta writes meta as indented "key: value" lines in key order.
func printMeta(w io.Writer, indent string, meta map[string]any) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := meta[k].(map[string]any); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			printMeta(w, indent+"  ", sub)
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, meta[k])
	}
}

// parsePoint reads an "x,y" pixel position.
func parsePoint(s string) ([2]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("point %q: want x,y", s)
	}
	var p [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [2]float64{}, fmt.Errorf("point %q: %w", s, err)
		}
		p[i] = v
	}
	return p, nil
}

// parseDrizzle reads the eight comma-separated values of the resampler
// frame layout.
func parseDrizzle(s string) ([8]float64, error) {
	var a [8]float64
	parts := strings.Split(s, ",")
	if len(parts) != len(a) {
		return a, fmt.Errorf("drizzle frame %q: want %d values, got %d", s, len(a), len(parts))
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return a, fmt.Errorf("drizzle frame %q: %w", s, err)
		}
		a[i] = v
	}
	return a, nil
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
