package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"cityflow/neurotraff/classifier"
	"cityflow/neurotraff/config"
	"cityflow/neurotraff/models"
	"cityflow/neurotraff/pipeline"
	"cityflow/neurotraff/store"
)

func fitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the pipeline on stored samples and train the classifier",
		Long: `Loads samples either from Postgres (--from/--to) or from a JSON file of
samples (--input), fits the feature pipeline, trains the nearest-centroid
classifier on the encoded traffic level and writes both artifacts.`,
		RunE: runFit,
	}

	cmd.Flags().String("from", "", "Start of the sample range, RFC3339 or YYYY-MM-DD (inclusive)")
	cmd.Flags().String("to", "", "End of the sample range, RFC3339 or YYYY-MM-DD (exclusive, default now)")
	cmd.Flags().StringP("input", "i", "", "Read samples from a JSON array file instead of the database")
	cmd.Flags().String("pipeline-out", "artifacts/traffic_pipeline.json", "Fitted pipeline artifact path")
	cmd.Flags().String("classifier-out", "artifacts/classifier.json", "Classifier artifact path")

	return cmd
}

func runFit(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	pipelineOut, _ := cmd.Flags().GetString("pipeline-out")
	classifierOut, _ := cmd.Flags().GetString("classifier-out")

	var samples []models.FlowSample
	var err error
	if input != "" {
		samples, err = readSamples(input)
	} else {
		samples, err = loadRange(cmd.Context(), fromStr, toStr)
	}
	if err != nil {
		return err
	}

	fitted, model, report, err := train(samples)
	if err != nil {
		return err
	}

	for _, path := range []string{pipelineOut, classifierOut} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	if err := pipeline.SaveFile(pipelineOut, fitted); err != nil {
		return fmt.Errorf("write pipeline: %w", err)
	}
	if err := model.SaveFile(classifierOut); err != nil {
		return fmt.Errorf("write classifier: %w", err)
	}

	fmt.Printf("samples:     %d\n", report.Samples)
	fmt.Printf("trained on:  %d (dropped %d without a traffic level)\n", report.Trained, report.Dropped)
	fmt.Printf("accuracy:    %.3f (training set)\n", report.Accuracy)
	fmt.Printf("fingerprint: %s\n", model.Fingerprint)
	fmt.Printf("pipeline:    %s\n", pipelineOut)
	fmt.Printf("classifier:  %s\n", classifierOut)
	return nil
}

func loadRange(ctx context.Context, fromStr, toStr string) ([]models.FlowSample, error) {
	if fromStr == "" {
		return nil, fmt.Errorf("--from or --input is required")
	}
	from, err := parseInstant(fromStr)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	to := time.Now().UTC()
	if toStr != "" {
		if to, err = parseInstant(toStr); err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	samples, err := store.NewHistoryStore(db).Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d samples from %s to %s", len(samples), from.Format(time.RFC3339), to.Format(time.RFC3339))
	return samples, nil
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func readSamples(path string) ([]models.FlowSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples []models.FlowSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return samples, nil
}

type trainReport struct {
	Samples  int
	Trained  int
	Dropped  int
	Accuracy float64
}

// train fits the default pipeline on every sample, drops rows whose traffic
// level is undefined and trains the classifier on the remaining feature rows.
func train(samples []models.FlowSample) (*pipeline.Pipeline, *classifier.Centroid, trainReport, error) {
	report := trainReport{Samples: len(samples)}
	if len(samples) == 0 {
		return nil, nil, report, fmt.Errorf("no samples to train on")
	}

	fitted, out, err := pipeline.Default().FitApply(pipeline.FromSamples(samples))
	if err != nil {
		return nil, nil, report, err
	}
	labels, err := fitted.Labels()
	if err != nil {
		return nil, nil, report, err
	}
	target, ok := out.Column(pipeline.ColTrafficLevel)
	if !ok {
		return nil, nil, report, fmt.Errorf("pipeline output has no %q column", pipeline.ColTrafficLevel)
	}

	missing, hasMissing := labels.MissingCode()
	var keep []int
	var codes []int
	for i := 0; i < out.Rows(); i++ {
		v, _ := target.Float(i)
		code := int(v)
		if hasMissing && code == missing {
			continue
		}
		keep = append(keep, i)
		codes = append(codes, code)
	}
	report.Trained = len(keep)
	report.Dropped = out.Rows() - len(keep)
	if len(keep) == 0 {
		return nil, nil, report, fmt.Errorf("no samples with a defined traffic level")
	}

	features := out.Take(keep).Drop(pipeline.LabelColumns...)
	model, err := classifier.Train(features, codes)
	if err != nil {
		return nil, nil, report, err
	}

	predicted, err := model.Predict(features)
	if err != nil {
		return nil, nil, report, err
	}
	correct := 0
	for i, p := range predicted {
		if p == codes[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(codes))
	return fitted, model, report, nil
}
