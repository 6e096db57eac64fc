package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	urfave "github.com/urfave/cli/v3"

	client "github.com/mchmarny/riskctl/pkg/http"
	"github.com/mchmarny/riskctl/pkg/risk"
)

const stdinFile = "-"

var (
	fileFlag = &urfave.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Path to the JSON input, - reads stdin",
		Value:   stdinFile,
	}

	serverURLFlag = &urfave.StringFlag{
		Name:  "server",
		Usage: "URL of a running riskctl server to send the request to (e.g. http://127.0.0.1:8080)",
	}

	assessCmd = &urfave.Command{
		Name:  "assess",
		Usage: "Assess the risk of a single entity",
		UsageText: `riskctl assess --file host.json
   echo '{"entity_id":"web-01","open_ports":25}' | riskctl assess
   riskctl assess --file host.json --server http://127.0.0.1:8080`,
		Action: cmdAssess,
		Flags: []urfave.Flag{
			fileFlag,
			serverURLFlag,
			modelFlag,
		},
	}

	bulkCmd = &urfave.Command{
		Name:  "bulk",
		Usage: "Assess many entities from {\"entities\": [...]} or a JSON array",
		UsageText: `riskctl bulk --file fleet.json
   riskctl bulk --file fleet.json --server http://127.0.0.1:8080`,
		Action: cmdBulk,
		Flags: []urfave.Flag{
			fileFlag,
			serverURLFlag,
			modelFlag,
		},
	}
)

// bulkRequest is the request body of a bulk assessment. Elements are kept
// raw so one malformed entity fails on its own.
type bulkRequest struct {
	Entities []json.RawMessage `json:"entities"`
}

func openInput(cmd *urfave.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == stdinFile {
		return io.NopCloser(cmd.Root().Reader), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	return f, nil
}

func decodeEntity(r io.Reader) (map[string]any, error) {
	d := json.NewDecoder(r)
	d.UseNumber()
	var raw map[string]any
	if err := d.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	if raw == nil {
		return nil, errors.New("entity must be a JSON object")
	}
	return raw, nil
}

// decodeEntities accepts either a bulk request object or a bare array.
func decodeEntities(r io.Reader) ([]json.RawMessage, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading entities: %w", err)
	}
	b = bytes.TrimSpace(b)

	d := json.NewDecoder(bytes.NewReader(b))

	if len(b) > 0 && b[0] == '[' {
		var list []json.RawMessage
		if err := d.Decode(&list); err != nil {
			return nil, fmt.Errorf("decoding entity list: %w", err)
		}
		return list, nil
	}

	var req bulkRequest
	if err := d.Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding bulk request: %w", err)
	}
	return req.Entities, nil
}

// entityMaps decodes each raw element into an entity map. Elements that are
// not JSON objects become nil, which the engine reports per entity.
func entityMaps(items []json.RawMessage) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		d := json.NewDecoder(bytes.NewReader(item))
		d.UseNumber()
		var raw map[string]any
		if err := d.Decode(&raw); err != nil {
			slog.Debug("bulk element is not an object", "index", i, "error", err)
			continue
		}
		out[i] = raw
	}
	return out
}

func cmdAssess(ctx context.Context, cmd *urfave.Command) error {
	in, err := openInput(cmd, cmd.String(fileFlag.Name))
	if err != nil {
		return err
	}
	defer in.Close()

	raw, err := decodeEntity(in)
	if err != nil {
		return err
	}

	if url := cmd.String(serverURLFlag.Name); url != "" {
		var report risk.Report
		if err := client.PostJSON(ctx, client.NewClient(url), apiAssessPath, raw, &report); err != nil {
			return fmt.Errorf("assessing entity on %s: %w", url, err)
		}
		return output(cmd, &report)
	}

	cfg := getConfig(cmd)
	e, err := readyEngine(ctx, cfg, modelName(cmd))
	if err != nil {
		return err
	}

	report, err := e.Assess(raw)
	if err != nil {
		return fmt.Errorf("assessing entity: %w", err)
	}
	recordReport(ctx, cfg.DB, report)

	return output(cmd, report)
}

func cmdBulk(ctx context.Context, cmd *urfave.Command) error {
	in, err := openInput(cmd, cmd.String(fileFlag.Name))
	if err != nil {
		return err
	}
	defer in.Close()

	entities, err := decodeEntities(in)
	if err != nil {
		return err
	}

	if url := cmd.String(serverURLFlag.Name); url != "" {
		var results map[string]*risk.BulkResult
		if err := client.PostJSON(ctx, client.NewClient(url), apiBulkPath, bulkRequest{Entities: entities}, &results); err != nil {
			return fmt.Errorf("bulk assessing on %s: %w", url, err)
		}
		return output(cmd, results)
	}

	cfg := getConfig(cmd)
	e, err := readyEngine(ctx, cfg, modelName(cmd))
	if err != nil {
		return err
	}

	results, err := e.BulkAssess(ctx, entityMaps(entities))
	if err != nil {
		return fmt.Errorf("bulk assessing entities: %w", err)
	}
	recordBulk(ctx, cfg.DB, results)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	slog.Debug("bulk assessment done", "entities", len(entities), "failed", failed)

	return output(cmd, results)
}
