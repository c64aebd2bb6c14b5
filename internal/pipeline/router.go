package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"wcscal/internal/distortion"
	"wcscal/internal/fitsfile"
	"wcscal/internal/header"
	"wcscal/internal/logging"
	"wcscal/internal/outframe"
	"wcscal/internal/shiftext"
	"wcscal/internal/storage"
	"wcscal/internal/wcs"
	"wcscal/internal/wcsmap"
)

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log       *slog.Logger
	settings  Settings
	loadImage func(path string) (Image, error)
	loadModel func(ctx context.Context, img Image, options map[string]any) (*distortion.Model, map[string]any, error)
	blocks    func(path string) shiftext.Image
	union     outframe.FootprintUnion
}

func newRouter(logger *slog.Logger, store *storage.Store, settings Settings) Processor {
	r := &router{
		log:       logger,
		settings:  settings,
		loadImage: LoadImage,
		union:     outframe.BoundingUnion,
	}
	r.loadModel = func(ctx context.Context, img Image, options map[string]any) (*distortion.Model, map[string]any, error) {
		return loadModel(ctx, img, r.settings, modelSpecFrom(options), r.log)
	}
	r.blocks = func(path string) shiftext.Image {
		if store == nil {
			return &shiftext.MemImage{}
		}
		return store.Image(path)
	}
	return r
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobModel:
		return r.handleModel(ctx, job)
	case JobOutframe:
		return r.handleOutframe(ctx, job)
	case JobFit:
		return r.handleFit(ctx, job)
	case JobMap:
		return r.handleMap(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

func (r *router) handleModel(ctx context.Context, job Job) Result {
	if len(job.Inputs) != 1 {
		return Result{Job: job, Error: fmt.Errorf("model job needs one image, got %d", len(job.Inputs))}
	}
	img, err := r.loadImage(job.Inputs[0])
	if err != nil {
		return Result{Job: job, Error: err}
	}
	m, meta, err := r.loadModel(ctx, img, job.Options)
	if err != nil {
		return Result{Job: job, Error: err}
	}
	ref := m.RefPix()
	meta["order"] = m.Order()
	meta["identity"] = m.IsIdentity()
	meta["plate_scale"] = ref.PlateScale
	meta["v2ref"] = ref.V2Ref
	meta["v3ref"] = ref.V3Ref
	meta["theta"] = ref.Theta
	meta["cx"] = coeffRows(m.CX, m.Order())
	meta["cy"] = coeffRows(m.CY, m.Order())
	return Result{Job: job, Meta: meta}
}

func coeffRows(at func(i, j int) float64, order int) [][]float64 {
	out := make([][]float64, order+1)
	for i := range out {
		out[i] = make([]float64, i+1)
		for j := 0; j <= i; j++ {
			out[i][j] = at(i, j)
		}
	}
	return out
}

func (r *router) handleOutframe(ctx context.Context, job Job) Result {
	if len(job.Inputs) == 0 {
		return Result{Job: job, Error: fmt.Errorf("outframe job needs at least one image")}
	}
	frames, err := r.loadFrames(ctx, job)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	var ref *wcs.Frame
	if path := getStringOption(job.Options, "reference"); path != "" {
		img, err := r.loadImage(path)
		if err != nil {
			return Result{Job: job, Error: err}
		}
		ref = &img.Frame
	}

	set, err := outframe.Make(frames, ref, r.union, r.settings.Output.SingleOverrides(), r.settings.Output.FinalOverrides())
	if err != nil {
		return Result{Job: job, Error: err}
	}
	logging.LogProcessingStep(r.log, job.ID, "outframe", "built", map[string]any{"inputs": len(frames)})

	if job.Output != "" {
		h := header.New()
		set.Final.ToHeader(h)
		h.Set("NPIX1", set.Final.Width)
		h.Set("NPIX2", set.Final.Height)
		if err := fitsfile.WriteHeader(job.Output, h); err != nil {
			return Result{Job: job, Error: fmt.Errorf("write output frame: %w", err)}
		}
	}
	return Result{Job: job, Meta: map[string]any{
		"default": frameMeta(set.Default),
		"single":  frameMeta(set.Single),
		"final":   frameMeta(set.Final),
		"output":  job.Output,
	}}
}

// loadFrames reads the input frames concurrently, keeping input order.
func (r *router) loadFrames(ctx context.Context, job Job) ([]wcs.Frame, error) {
	frames := make([]wcs.Frame, len(job.Inputs))
	g, ctx := errgroup.WithContext(ctx)
	if r.settings.Parallel > 0 {
		g.SetLimit(r.settings.Parallel)
	}
	for i, path := range job.Inputs {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := r.loadImage(path)
			if err != nil {
				return err
			}
			frames[i] = img.Frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

func frameMeta(f wcs.Frame) map[string]any {
	ra, dec := wcs.HMS(f.CRVal[0], f.CRVal[1])
	return map[string]any{
		"crpix":   f.CRPix,
		"crval":   f.CRVal,
		"ra":      ra,
		"dec":     dec,
		"width":   f.Width,
		"height":  f.Height,
		"pscale":  f.PScale,
		"orient":  f.Orient,
		"drizzle": f.ToDrizzleArray(),
	}
}

func (r *router) handleFit(ctx context.Context, job Job) Result {
	if len(job.Inputs) != 2 {
		return Result{Job: job, Error: fmt.Errorf("fit job needs an image and a reference, got %d inputs", len(job.Inputs))}
	}
	img, err := r.loadImage(job.Inputs[0])
	if err != nil {
		return Result{Job: job, Error: err}
	}
	ref, err := r.loadImage(job.Inputs[1])
	if err != nil {
		return Result{Job: job, Error: err}
	}
	m, _, err := r.loadModel(ctx, img, job.Options)
	if err != nil {
		return Result{Job: job, Error: err}
	}
	fr, err := wcsmap.WCSFit(img.Frame, m, ref.Frame)
	if err != nil {
		return Result{Job: job, Error: fmt.Errorf("fit %s to %s: %w", img.Path, ref.Path, err)}
	}
	return Result{Job: job, Meta: map[string]any{
		"a": fr.A, "b": fr.B, "xt": fr.XT,
		"c": fr.C, "d": fr.D, "yt": fr.YT,
	}}
}

func (r *router) handleMap(ctx context.Context, job Job) Result {
	if len(job.Inputs) < 1 || len(job.Inputs) > 2 {
		return Result{Job: job, Error: fmt.Errorf("map job needs an image and an optional output frame image, got %d inputs", len(job.Inputs))}
	}
	img, err := r.loadImage(job.Inputs[0])
	if err != nil {
		return Result{Job: job, Error: err}
	}
	out := img.Frame
	if len(job.Inputs) == 2 {
		o, err := r.loadImage(job.Inputs[1])
		if err != nil {
			return Result{Job: job, Error: err}
		}
		out = o.Frame
	} else if a, ok := job.Options["drizzle"].([8]float64); ok {
		// Output frame given in the resampler layout; size follows the input.
		out.FromDrizzleArray(a)
	}
	m, _, err := r.loadModel(ctx, img, job.Options)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	mp := wcsmap.New(&img.Frame, m, out, r.log)
	if !getBoolOption(job.Options, "noShift") {
		if err := mp.ApplyShift(r.blocks(img.Path)); err != nil {
			return Result{Job: job, Error: err}
		}
	}

	points, _ := job.Options["points"].([][2]float64)
	mapped := make([][2]float64, len(points))
	for i, p := range points {
		x, y := mp.Forward(p[0], p[1])
		mapped[i] = [2]float64{x, y}
	}
	meta := map[string]any{
		"points":           mapped,
		"pixel_area_ratio": mp.PixelAreaRatio(),
		"output":           frameMeta(mp.Output()),
	}
	if c := mp.Shift(); c != nil {
		meta["shift"] = map[string]any{"dx": c.ShiftX, "dy": c.ShiftY, "rot": c.Rotation, "scale": c.Scale}
	}
	return Result{Job: job, Meta: meta}
}

// Helper functions to safely extract typed options from job.Options map
func getBoolOption(options map[string]any, key string) bool {
	if val, ok := options[key].(bool); ok {
		return val
	}
	return false
}

func getStringOption(options map[string]any, key string) string {
	if val, ok := options[key].(string); ok {
		return val
	}
	return ""
}

func getFloatOption(options map[string]any, key string) float64 {
	if val, ok := options[key].(float64); ok {
		return val
	}
	return 0
}
