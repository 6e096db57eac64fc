package cli

import (
	"context"
	"fmt"

	urfave "github.com/urfave/cli/v3"

	"github.com/mchmarny/riskctl/pkg/risk"
)

var (
	modelFlag = &urfave.StringFlag{
		Name:  "model",
		Usage: "Name under which the model is stored (default: model.name from config)",
	}

	samplesFlag = &urfave.IntFlag{
		Name:  "samples",
		Usage: "Number of synthetic training records (default: engine.samples from config)",
	}

	seedFlag = &urfave.Uint64Flag{
		Name:  "seed",
		Usage: "Random seed for data generation and tree building (default: engine.seed from config)",
	}

	trainCmd = &urfave.Command{
		Name:  "train",
		Usage: "Train a new model on synthetic data and store it",
		UsageText: `riskctl train                        # train with config settings
   riskctl train --samples 5000 --seed 7  # override data size and seed
   riskctl train --model staging          # store under a different name`,
		Action: cmdTrain,
		Flags: []urfave.Flag{
			modelFlag,
			samplesFlag,
			seedFlag,
		},
	}
)

func modelName(cmd *urfave.Command) string {
	if v := cmd.String(modelFlag.Name); v != "" {
		return v
	}
	return getConfig(cmd).Config.Model.Name
}

func cmdTrain(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	ec := engineConfig(cfg.Config)
	if cmd.IsSet(samplesFlag.Name) {
		ec.Samples = cmd.Int(samplesFlag.Name)
	}
	if cmd.IsSet(seedFlag.Name) {
		ec.Seed = cmd.Uint64(seedFlag.Name)
	}

	e := risk.NewEngine(ec)
	report, err := e.Train(ctx)
	if err != nil {
		return fmt.Errorf("training model: %w", err)
	}

	name := modelName(cmd)
	if err := e.Save(ctx, cfg.DB, name); err != nil {
		return fmt.Errorf("saving model %s: %w", name, err)
	}

	return output(cmd, report)
}
