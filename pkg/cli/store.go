package cli

import (
	"context"
	"fmt"

	urfave "github.com/urfave/cli/v3"
)

const historyLimitDefault = 20

var (
	entityFlag = &urfave.StringFlag{
		Name:  "entity",
		Usage: "Only list assessments of this entity id",
	}

	limitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of assessments to list",
		Value: historyLimitDefault,
	}

	modelsCmd = &urfave.Command{
		Name:   "models",
		Usage:  "List stored models",
		Action: cmdModels,
	}

	historyCmd = &urfave.Command{
		Name:   "history",
		Usage:  "List recorded assessments, newest first",
		Action: cmdHistory,
		Flags: []urfave.Flag{
			entityFlag,
			limitFlag,
		},
	}
)

func cmdModels(ctx context.Context, cmd *urfave.Command) error {
	list, err := getConfig(cmd).DB.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	return output(cmd, list)
}

func cmdHistory(ctx context.Context, cmd *urfave.Command) error {
	list, err := getConfig(cmd).DB.ListAssessments(ctx, cmd.String(entityFlag.Name), cmd.Int(limitFlag.Name))
	if err != nil {
		return fmt.Errorf("listing assessments: %w", err)
	}
	return output(cmd, list)
}
