package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/fusion"
	"github.com/alanyoungcy/sudarshan/internal/service"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the fusion engine over a request file offline",
		RunE:  runAnalyze,
	}
	cmd.Flags().String("file", "-", "analyze request JSON file, - for stdin")
	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req domain.AnalyzeRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("analyze: parse request: %w", err)
	}

	defaults := service.FusionDefaults{}
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defaults.Weights = domain.Weights(cfg.Fusion.Weights).Clone()
		defaults.MinConfirms = cfg.Fusion.MinConfirms
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := service.NewFusionService(fusion.NewOrchestrator(nil, logger), defaults, service.FusionDeps{}, logger)

	res, err := svc.Analyze(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		OK bool `json:"ok"`
		domain.AnalyzeResult
	}{OK: true, AnalyzeResult: res})
}
