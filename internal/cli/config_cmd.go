package cli

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"wcscal/internal/outframe"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0-dev"

func (r *Root) configShow() error {
	w := r.out
	fmt.Fprintf(w, "Current configuration:\n")
	cfgPath := os.Getenv("WCSCAL_CONFIG")
	if cfgPath == "" {
		cfgPath = "(default) ~/.config/wcscal/config.json"
	}
	fmt.Fprintf(w, "Config file: %s\n", cfgPath)
	fmt.Fprintf(w, "Database Path: %s\n", r.cfg.Paths.DatabasePath)
	fmt.Fprintf(w, "Parallel Jobs: %d\n", r.cfg.Processing.ParallelJobs)
	fmt.Fprintf(w, "Log Level: %s\n", r.cfg.Logging.Level)

	fmt.Fprintf(w, "\nReference directories:\n")
	prefixes := make([]string, 0, len(r.cfg.Paths.ReferenceDirs))
	for p := range r.cfg.Paths.ReferenceDirs {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		fmt.Fprintf(w, "  %s$ -> %s\n", p, r.cfg.Paths.ReferenceDirs[p])
	}

	t := r.cfg.TDD
	fmt.Fprintf(w, "\nTime-dependent skew:\n")
	fmt.Fprintf(w, "  Epoch: %s\n", t.Epoch)
	fmt.Fprintf(w, "  Alpha: %g + %g*t\n", t.Alpha0, t.Alpha1)
	fmt.Fprintf(w, "  Beta: %g + %g*t\n", t.Beta0, t.Beta1)
	fmt.Fprintf(w, "  Period: %g years\n", t.PeriodYears)

	fmt.Fprintf(w, "\nOutput overrides:\n")
	fmt.Fprintf(w, "  Single: %s\n", overridesString(r.cfg.Output.SingleOverrides()))
	fmt.Fprintf(w, "  Final: %s\n", overridesString(r.cfg.Output.FinalOverrides()))
	return nil
}

func (r *Root) version() {
	fmt.Fprintf(r.out, "wcscal v%s\n", Version)
	fmt.Fprintf(r.out, "Built with Go %s\n", runtime.Version())
}

func overridesString(o outframe.Overrides) string {
	if o.IsZero() {
		return "none"
	}
	var parts []string
	addF := func(name string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%g", name, *v))
		}
	}
	addI := func(name string, v *int) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%d", name, *v))
		}
	}
	addF("ra", o.RA)
	addF("dec", o.Dec)
	addF("scale", o.PixelSize)
	addF("rot", o.Orient)
	addI("outnx", o.OutNX)
	addI("outny", o.OutNY)
	addF("crpix1", o.CRPix1)
	addF("crpix2", o.CRPix2)
	return strings.Join(parts, " ")
}
