package cmd

import (
	"context"
	"fmt"

	"github.com/jobify-ml/skillner/internal/logger"
	"github.com/jobify-ml/skillner/skillner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score the model on the labeled dataset splits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEval(cmd)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringSlice("splits", nil, "dataset splits to score (default: the configured splits)")
}

func runEval(cmd *cobra.Command) error {
	ctx := context.Background()

	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}
	if splits, err := cmd.Flags().GetStringSlice("splits"); err == nil && len(splits) > 0 {
		config.Splits = splits
	}

	handle, err := skillner.Load(ctx, config)
	if err != nil {
		return fmt.Errorf("loading model %q: %w", config.Model, err)
	}
	defer func() { _ = handle.Close() }()

	zl.Info("scoring model",
		zap.String("model", config.Model),
		zap.String("dataset", config.Dataset),
		zap.Strings("splits", config.Splits),
	)
	report, err := handle.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}

	fmt.Printf("precision: %.4f\n", report.Precision)
	fmt.Printf("recall:    %.4f\n", report.Recall)
	fmt.Printf("f1:        %.4f\n", report.F1)
	fmt.Printf("spans:     %d predicted, %d true, %d matched\n",
		report.PredictedSpans, report.TrueSpans, report.TruePositives)
	return nil
}
