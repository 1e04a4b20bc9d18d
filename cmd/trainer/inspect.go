package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cityflow/neurotraff/classifier"
	"cityflow/neurotraff/pipeline"
	"cityflow/neurotraff/services"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the stages, encoder tables and output schema of a fitted pipeline",
		RunE:  runInspect,
	}

	cmd.Flags().String("pipeline", "artifacts/traffic_pipeline.json", "Fitted pipeline artifact")
	cmd.Flags().String("classifier", "", "Also check this classifier artifact against the pipeline")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("pipeline")
	classifierPath, _ := cmd.Flags().GetString("classifier")

	p, err := pipeline.LoadFile(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Pipeline %s\n", path)
	fmt.Fprintln(out, strings.Repeat("=", 40))
	for i, st := range p.Stages() {
		fmt.Fprintf(out, "%d. %-24s %T\n", i+1, st.Name(), st)
		switch enc := st.(type) {
		case *pipeline.OrdinalEncoder:
			fmt.Fprintf(out, "   column %q, %d categories: %s\n", enc.Column(), len(enc.Categories()), strings.Join(enc.Categories(), ", "))
		case *pipeline.LabelEncoder:
			fmt.Fprintf(out, "   column %q, classes: %s\n", enc.Column(), strings.Join(enc.Classes(), ", "))
			if code, ok := enc.MissingCode(); ok {
				fmt.Fprintf(out, "   missing values encode to %d\n", code)
			}
		}
	}

	schema, err := p.OutputSchema(pipeline.RawSchema())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nOutput schema:")
	for _, f := range schema {
		fmt.Fprintf(out, "  %-20s %s\n", f.Name, f.Kind)
	}
	features, err := p.FeatureSchema()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nFeature fingerprint: %s\n", features.Fingerprint())

	if classifierPath != "" {
		if _, err := classifier.LoadBundle(path, classifierPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Classifier %s matches\n", classifierPath)
	}
	return nil
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash to use as OPERATOR_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := services.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
