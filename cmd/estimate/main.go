package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"synthctl/adapters/excel"
	"synthctl/app"
	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/conformal"
	"synthctl/internal/config"
	"synthctl/internal/fitter"
	"synthctl/internal/gridsearch"
	"synthctl/internal/panelbuild"
	"synthctl/internal/rng"
)

func main() {
	treatedFlag := flag.String("treated", "", "treated entity code (defaults to the first configured treated entity)")
	outputFlag := flag.String("out", "results.csv", "output CSV path")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("[Estimate] no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Estimate] configuration error: %v", err)
	}
	if err := cfg.ValidatePanelRun(); err != nil {
		log.Fatalf("[Estimate] configuration error: %v", err)
	}

	treated, excluded, err := pickTreatedPair(cfg, *treatedFlag)
	if err != nil {
		log.Fatalf("[Estimate] %v", err)
	}

	ctx := context.Background()
	reader := excel.NewPanelReader(cfg.Panel.FilePath)
	p, err := reader.ReadPanel(ctx)
	if err != nil {
		log.Fatalf("[Estimate] failed to read panel: %v", err)
	}

	// the treatment date is authoritative for the pre/post split
	td := core.NewTreatmentDate(cfg.Panel.TreatmentDate)
	for i := range p.Rows {
		p.Rows[i].PostTreatment = td.IsPost(p.Rows[i].Date)
	}

	input, err := panelbuild.NewBuilder().Build(p, panel.OutcomeSpec{
		Key:        cfg.Panel.Outcome,
		Class:      cfg.Panel.OutcomeClass,
		PrePeriods: cfg.Panel.PrePeriods,
	}, treated, excluded)
	if err != nil {
		log.Fatalf("[Estimate] failed to build matrices: %v", err)
	}

	f := fitter.NewFitter()
	engine := conformal.NewEngine(f, rng.NewAdapter())
	engine.Permutations = cfg.Estimation.Permutations
	if cfg.Estimation.Scheme == "iid" {
		engine.Scheme = conformal.SchemeIID
	}
	controller := gridsearch.NewController(engine)
	controller.MaxExpansions = cfg.Estimation.MaxExpansions
	controller.Verbose = true

	service := app.NewEstimationService(f, controller)
	result, err := service.Estimate(ctx, app.Request{
		Input:     input,
		Treated:   treated,
		Outcome:   cfg.Panel.Outcome,
		Class:     cfg.Panel.OutcomeClass,
		ComputeCI: cfg.Estimation.ComputeCI,
		Precision: cfg.Estimation.Precision,
		Mode:      cfg.Estimation.FittingMode,
	})
	if err != nil {
		log.Fatalf("[Estimate] estimation failed: %v", err)
	}

	if err := writeCSV(*outputFlag, result.Records); err != nil {
		log.Fatalf("[Estimate] failed to write results: %v", err)
	}
	log.Printf("[Estimate] run %s complete: %d records written to %s", result.RunID, len(result.Records), *outputFlag)
	if result.Bounds != nil {
		log.Printf("[Estimate] 90%% interval [%.4f, %.4f] after %d expansions",
			result.Bounds.Lower, result.Bounds.Upper, result.Bounds.Expansions)
	}
}

// pickTreatedPair resolves which treated unit to estimate and which one
// to exclude from the donor pool.
func pickTreatedPair(cfg *config.Config, flagValue string) (treated, excluded core.EntityCode, err error) {
	pair := cfg.Panel.TreatedEntities
	treated = pair[0]
	if flagValue != "" {
		treated = core.EntityCode(flagValue)
	}
	switch treated {
	case pair[0]:
		return treated, pair[1], nil
	case pair[1]:
		return treated, pair[0], nil
	}
	return "", "", fmt.Errorf("treated entity %s is not one of the configured treated pair %v", treated, pair)
}

func writeCSV(path string, records []estimate.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"date", "obs", "synth", "gap", "upper_ci", "lower_ci", "t0", "outcome", "treated"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Date.Format("2006-01-02"),
			formatFloat(rec.Observed),
			formatFloat(rec.Synth),
			formatFloat(rec.Gap),
			formatBound(rec.UpperCI),
			formatBound(rec.LowerCI),
			strconv.Itoa(rec.T0),
			rec.Outcome.String(),
			rec.Treated.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
