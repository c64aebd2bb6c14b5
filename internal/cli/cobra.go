package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"wcscal/internal/pipeline"
	"wcscal/internal/shiftext"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wcscal",
		Short: "wcscal calibrates the geometry of astronomical images",
		Long: `wcscal loads instrument distortion models, builds output frames for
combining exposures, records shift corrections and maps pixel positions
between frames.`,
	}

	rootCmd.AddCommand(newModelCmd(root))
	rootCmd.AddCommand(newTDDCmd(root))
	rootCmd.AddCommand(newOutframeCmd(root))
	rootCmd.AddCommand(newFitCmd(root))
	rootCmd.AddCommand(newMapCmd(root))
	rootCmd.AddCommand(newShiftCmd(root))
	rootCmd.AddCommand(newJobsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// modelFlags select the distortion model of the commands that load one.
type modelFlags struct {
	tdd        bool
	coeffs     string
	wavelength float64
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.tdd, "tdd", false, "Force the time-dependent skew correction")
	cmd.Flags().StringVar(&f.coeffs, "coeffs", "", "Plain-text cubic coefficients file to use instead of the image keywords")
	cmd.Flags().Float64Var(&f.wavelength, "wavelength", 0, "Wavelength in nm; reads --coeffs as a Trauger file")
}

// options adds the model selection to opts.
func (f *modelFlags) options(opts map[string]any) (map[string]any, error) {
	if opts == nil {
		opts = map[string]any{}
	}
	opts["tdd"] = f.tdd
	if f.wavelength != 0 && f.coeffs == "" {
		return nil, fmt.Errorf("--wavelength requires --coeffs")
	}
	if f.wavelength < 0 {
		return nil, fmt.Errorf("--wavelength must be positive")
	}
	if f.coeffs != "" {
		abs, err := filepath.Abs(f.coeffs)
		if err != nil {
			return nil, err
		}
		opts["coeffs"] = abs
	}
	if f.wavelength > 0 {
		opts["wavelength"] = f.wavelength
	}
	return opts, nil
}

func newModelCmd(root *Root) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "model <image>",
		Short: "Show the distortion model selected for an image",
		Long: `Resolve the distortion source named by the image keywords (IDCTAB
reference table or embedded coefficients) or given with --coeffs, apply the
time-dependent skew correction where the detector needs it, and print the
coefficients.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mf.options(nil)
			if err != nil {
				return err
			}
			return root.runJob(cmd.Context(), pipeline.JobModel, args, "", opts)
		},
	}
	mf.register(cmd)
	return cmd
}

func newTDDCmd(root *Root) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "tdd",
		Short: "Show the time-dependent skew terms for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			p, err := root.cfg.TDD.Params()
			if err != nil {
				return err
			}
			alpha, beta := p.Terms(d)
			printMeta(root.out, "", map[string]any{
				"date":  date,
				"alpha": alpha,
				"beta":  beta,
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Observation date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newOutframeCmd(root *Root) *cobra.Command {
	var (
		reference string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "outframe <image|dir> [image|dir...]",
		Short: "Build the default, single and final output frames",
		Long: `Compute the frame covering every input image, then apply the
configured single and final overrides (output.single, output.final).
Directory arguments are expanded to the FITS images beneath them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := expandInputs(args)
			if err != nil {
				return err
			}
			opts := map[string]any{}
			if reference != "" {
				opts["reference"] = reference
			}
			return root.runJob(cmd.Context(), pipeline.JobOutframe, inputs, output, opts)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "Use this image's frame instead of the input union")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the final frame as a header-only FITS file")
	return cmd
}

func newFitCmd(root *Root) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "fit <image> <reference>",
		Short: "Fit the linear transform from an image to a reference frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mf.options(nil)
			if err != nil {
				return err
			}
			return root.runJob(cmd.Context(), pipeline.JobFit, args, "", opts)
		},
	}
	mf.register(cmd)
	return cmd
}

func newMapCmd(root *Root) *cobra.Command {
	var (
		outFrame string
		drizzle  string
		points   []string
		noShift  bool
		mf       modelFlags
	)
	cmd := &cobra.Command{
		Use:   "map <image>",
		Short: "Map pixel positions of an image onto an output frame",
		Long: `Map pixel positions through the image's distortion model and the sky
onto an output frame (the image's own frame by default). A recorded shift
correction is folded into the output frame first. The output frame may also
be given in the resampler's eight-value layout with --drizzle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pts := make([][2]float64, 0, len(points))
			for _, s := range points {
				p, err := parsePoint(s)
				if err != nil {
					return err
				}
				pts = append(pts, p)
			}
			if outFrame != "" && drizzle != "" {
				return fmt.Errorf("--frame and --drizzle are mutually exclusive")
			}
			inputs := args
			if outFrame != "" {
				inputs = append(inputs, outFrame)
			}
			opts, err := mf.options(map[string]any{
				"points":  pts,
				"noShift": noShift,
			})
			if err != nil {
				return err
			}
			if drizzle != "" {
				a, err := parseDrizzle(drizzle)
				if err != nil {
					return err
				}
				opts["drizzle"] = a
			}
			return root.runJob(cmd.Context(), pipeline.JobMap, inputs, "", opts)
		},
	}
	cmd.Flags().StringVar(&outFrame, "frame", "", "Image whose frame is the output frame")
	cmd.Flags().StringVar(&drizzle, "drizzle", "", "Output frame as crpix1,crval1,crpix2,crval2,cd11,cd21,cd12,cd22")
	cmd.Flags().StringArrayVarP(&points, "point", "p", nil, "Pixel position x,y (repeatable)")
	cmd.Flags().BoolVar(&noShift, "no-shift", false, "Ignore any recorded shift correction")
	mf.register(cmd)
	return cmd
}

func newShiftCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Record, show, remove or export shift corrections",
	}
	mgr := func() shiftext.Manager { return shiftext.Manager{Log: root.log} }

	var (
		dx, dy, rot, scale float64
		reference          string
	)
	writeCmd := &cobra.Command{
		Use:   "write <image>",
		Short: "Record a shift correction measured in a reference frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, path, err := root.shiftImage(args[0])
			if err != nil {
				return err
			}
			refPath := reference
			if refPath == "" {
				refPath = args[0]
			}
			ref, err := root.loadImage(refPath)
			if err != nil {
				return err
			}
			rec := shiftext.Record{ShiftX: dx, ShiftY: dy, Rotation: rot, Scale: scale, Frame: ref.Frame}
			if err := mgr().Write(img, rec); err != nil {
				return err
			}
			root.log.Info("shift recorded", "image", path, "dx", dx, "dy", dy, "rot", rot, "scale", scale)
			return nil
		},
	}
	writeCmd.Flags().Float64Var(&dx, "dx", 0, "Shift along x in reference pixels")
	writeCmd.Flags().Float64Var(&dy, "dy", 0, "Shift along y in reference pixels")
	writeCmd.Flags().Float64Var(&rot, "rot", 0, "Rotation in degrees")
	writeCmd.Flags().Float64Var(&scale, "scale", 1, "Scale factor")
	writeCmd.Flags().StringVar(&reference, "reference", "", "Image whose frame the shift was measured in (default: the image)")

	readCmd := &cobra.Command{
		Use:   "read <image>",
		Short: "Show the recorded shift correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, path, err := root.shiftImage(args[0])
			if err != nil {
				return err
			}
			rec, err := mgr().Read(img)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintf(root.out, "%s: no shift recorded\n", path)
				return nil
			}
			printMeta(root.out, "", recordMeta(path, rec))
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <image>",
		Short: "Remove the recorded shift correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, _, err := root.shiftImage(args[0])
			if err != nil {
				return err
			}
			return mgr().Remove(img)
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <image>",
		Short: "Write the recorded shift correction as a headerlet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, path, err := root.shiftImage(args[0])
			if err != nil {
				return err
			}
			rec, err := mgr().Read(img)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%s: no shift recorded", path)
			}
			out, err := shiftext.WriteHeaderlet(path, *rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(root.out, out)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List images with a recorded shift correction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := root.store.ImagePaths(shiftext.ExtName)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(root.out, p)
			}
			return nil
		},
	}

	cmd.AddCommand(writeCmd, readCmd, removeCmd, exportCmd, listCmd)
	return cmd
}

func recordMeta(path string, rec *shiftext.Record) map[string]any {
	return map[string]any{
		"image":           path,
		"dx":              rec.ShiftX,
		"dy":              rec.ShiftY,
		"rot":             rec.Rotation,
		"scale":           rec.Scale,
		"reference_frame": rec.Frame.String(),
	}
}

func newJobsCmd(root *Root) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := root.store.RecentJobs(limit)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				line := fmt.Sprintf("%s  %-8s  %-9s  %s", j.CreatedAt.Format(time.DateTime), j.JobType, j.Status, j.ID)
				if j.Error != "" {
					line += "  " + j.Error
				}
				fmt.Fprintln(root.out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow()
		},
	}
	cmd.AddCommand(showCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			root.version()
		},
	}
}
