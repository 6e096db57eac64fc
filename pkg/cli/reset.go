package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/mchmarny/riskctl/pkg/data"
)

var (
	yesFlag = &urfave.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}

	resetCmd = &urfave.Command{
		Name:   "reset",
		Usage:  "Delete a stored model so the next run trains a new one",
		Action: cmdReset,
		Flags: []urfave.Flag{
			modelFlag,
			yesFlag,
		},
	}
)

func cmdReset(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	name := modelName(cmd)
	w := cmd.Root().Writer

	if !cmd.Bool(yesFlag.Name) {
		fmt.Fprintf(w, "This will permanently delete model %q\n", name)
		fmt.Fprint(w, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(cmd.Root().Reader).ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	if err := cfg.DB.DeleteModel(ctx, name); err != nil {
		if errors.Is(err, data.ErrModelNotFound) {
			return fmt.Errorf("model %s not found", name)
		}
		return fmt.Errorf("deleting model %s: %w", name, err)
	}

	slog.Info("model deleted", "name", name)
	fmt.Fprintln(w, "Reset complete.")
	return nil
}
