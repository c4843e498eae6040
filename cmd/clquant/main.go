package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"clquant/internal/models"
	"clquant/pkg/config"
	"clquant/pkg/pipeline"

	"gonum.org/v1/gonum/stat"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Optional YAML configuration file")
	roiPath := flag.String("roi", "", "ROI (target region) mask volume")
	refPath := flag.String("ref", "", "Reference region mask volume")
	adDir := flag.String("ad", "", "Directory containing normalized AD-cohort PET volumes")
	ycDir := flag.String("yc", "", "Directory containing normalized YC-cohort PET volumes")
	standardPath := flag.String("standard", "", "Reference standard table (xlsx or csv)")
	workers := flag.Int("workers", 0, "Number of parallel workers per cohort (default: all CPUs)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Export per-cohort SUVR/CL arrays as .npy")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory for intermediary arrays")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override config-file values
	applyOverride(&cfg.Paths.ROIMask, *roiPath)
	applyOverride(&cfg.Paths.RefMask, *refPath)
	applyOverride(&cfg.Paths.ADDir, *adDir)
	applyOverride(&cfg.Paths.YCDir, *ycDir)
	applyOverride(&cfg.Paths.StandardTable, *standardPath)
	applyOverride(&cfg.Output.IntermediaryDir, *intermediaryDir)
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}

	if cfg.Paths.ROIMask == "" || cfg.Paths.RefMask == "" || cfg.Paths.ADDir == "" || cfg.Paths.YCDir == "" {
		flag.Usage()
		log.Fatal("ROI mask, reference mask, AD directory and YC directory are required")
	}

	fmt.Println("================================")
	fmt.Println("AMYLOID-PET CENTILOID QUANTIFICATION")
	fmt.Println("SUVR computation, Centiloid scaling and reference agreement")
	fmt.Println("================================")

	params := &pipeline.Params{
		ROIMaskPath:             cfg.Paths.ROIMask,
		RefMaskPath:             cfg.Paths.RefMask,
		ADDir:                   cfg.Paths.ADDir,
		YCDir:                   cfg.Paths.YCDir,
		StandardPath:            cfg.Paths.StandardTable,
		NumWorkers:              cfg.Processing.NumWorkers,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}

	analyzer := pipeline.NewAnalyzer(params)

	fmt.Println("Starting Centiloid analysis...")
	startTime := time.Now()
	if err := analyzer.Process(); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	processingTime := time.Since(startTime)

	results := analyzer.Results()
	fmt.Printf("\nAnalysis completed successfully in %.2f seconds!\n\n", processingTime.Seconds())

	printCohortSummary("AD", results.AD.Measurements, results.ADCentiloid)
	printCohortSummary("YC", results.YC.Measurements, results.YCCentiloid)

	fmt.Printf("\nCentiloid anchors:\n")
	fmt.Printf("==================\n")
	fmt.Printf("YC SUVR mean: %.4f (maps to CL 0)\n", results.YCMean)
	fmt.Printf("AD SUVR mean: %.4f (maps to CL 100)\n", results.ADMean)
	fmt.Printf("Slope: %.4f", results.Slope)
	if results.SlopeFallback {
		fmt.Printf(" (fallback: cohort means nearly equal)")
	}
	fmt.Println()

	fmt.Printf("\nAgreement with reference dataset")
	if results.Standard.Synthetic {
		fmt.Printf(" (SYNTHETIC reference)")
	}
	fmt.Printf(":\n")
	fmt.Printf("================================\n")
	printRegression("SUVR", results.SUVRRegression)
	printRegression("CL", results.CLRegression)
	printBlandAltman("SUVR", results.SUVRBlandAltman)
	printBlandAltman("CL", results.CLBlandAltman)

	if cfg.Output.Verbose {
		for _, d := range results.Diagnostics {
			fmt.Printf("Note: %s\n", d)
		}
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Printf("\nIntermediary arrays saved to: %s\n", cfg.Output.IntermediaryDir)
	}
}

func applyOverride(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func printCohortSummary(group string, measurements []models.SubjectMeasurement, cl []models.CentiloidResult) {
	var suvr []float64
	skipped := 0
	for _, m := range measurements {
		if m.Valid {
			suvr = append(suvr, m.SUVR)
		} else {
			skipped++
		}
	}

	fmt.Printf("%s cohort: %d subjects (%d skipped)\n", group, len(suvr), skipped)
	if len(suvr) == 0 {
		return
	}
	fmt.Printf("  SUVR mean %.3f, sd %.3f\n", stat.Mean(suvr, nil), stat.StdDev(suvr, nil))

	clVals := make([]float64, len(cl))
	for i, r := range cl {
		clVals[i] = r.CL
	}
	fmt.Printf("  CL   mean %.1f, sd %.1f\n", stat.Mean(clVals, nil), stat.StdDev(clVals, nil))
}

func printRegression(label string, r *models.RegressionResult) {
	if r == nil {
		fmt.Printf("%s regression: unavailable\n", label)
		return
	}
	fmt.Printf("%s regression: y = %.3fx + %.3f, r² = %.3f (n=%d)\n",
		label, r.Slope, r.Intercept, r.RSquared, r.N)
}

func printBlandAltman(label string, ba *models.BlandAltmanResult) {
	if ba == nil || ba.Insufficient {
		fmt.Printf("%s Bland-Altman: insufficient data\n", label)
		return
	}
	fmt.Printf("%s Bland-Altman: mean diff %.3f ± %.3f, LoA [%.3f, %.3f] (n=%d)\n",
		label, ba.MeanDiff, ba.StdDiff, ba.LowerLoA, ba.UpperLoA, ba.N)
}
