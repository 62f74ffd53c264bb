package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/urfave/cli/v3"

	"github.com/maauso/genjob/internal/bootstrap"
	"github.com/maauso/genjob/internal/config"
	"github.com/maauso/genjob/internal/job"
	"github.com/maauso/genjob/internal/provider"
)

const shutdownTimeout = 5 * time.Second

// submitOutput is printed by the submit command.
type submitOutput struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
	Polls        int      `json:"polls"`
	Materialized bool     `json:"materialized"`
	MIMEType     string   `json:"mimeType,omitempty"`
	Ref          string   `json:"ref,omitempty"`
	URL          string   `json:"url,omitempty"`
	File         string   `json:"file,omitempty"`
	Error        string   `json:"error,omitempty"`
	Attempts     []string `json:"attempts,omitempty"`
}

// SubmitAction submits one job, waits for it and prints the outcome.
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	deps, cfg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(deps)

	req := job.Request{
		Kind:   provider.Kind(cmd.String("kind")),
		Prompt: cmd.String("prompt"),
		Options: provider.Options{
			AspectRatio: cmd.String("aspect-ratio"),
			Size:        cmd.String("size"),
			DurationSec: int(cmd.Int("duration")),
			Quality:     cmd.String("quality"),
		},
		Models: cmd.StringSlice("models"),
	}
	if ref := cmd.String("reference"); ref != "" {
		req.Reference, err = readReference(ref)
		if err != nil {
			return err
		}
		req.Reference.Description = cmd.String("reference-description")
	}

	submitted, err := deps.Orchestrator.Submit(ctx, cfg, req)
	if submitted == nil {
		return fmt.Errorf("submit: %w", err)
	}

	done := submitted
	if err == nil {
		done, err = deps.Orchestrator.Await(ctx, submitted.ID)
		if done == nil {
			return fmt.Errorf("await %s: %w", submitted.ID, err)
		}
	}

	out := toSubmitOutput(done)
	if path := cmd.String("out"); path != "" && done.Asset != nil && len(done.Asset.Data) > 0 {
		if werr := os.WriteFile(path, done.Asset.Data, 0o644); werr != nil {
			return fmt.Errorf("write %s: %w", path, werr)
		}
		out.File = path
	}

	if perr := printJSON(cmd.Root().Writer, out); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("job %s %s", done.ID, strings.ToLower(string(done.Status)))
	}
	return nil
}

// QuotaAction prints the account balance of the configured provider.
func QuotaAction(ctx context.Context, cmd *cli.Command) error {
	deps, cfg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(deps)

	q, err := deps.Orchestrator.Quota(ctx, cfg)
	if errors.Is(err, provider.ErrQuotaNotSupported) {
		return fmt.Errorf("%s does not report quota", cfg.Provider)
	}
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	return printJSON(cmd.Root().Writer, map[string]any{
		"provider":  cfg.Provider,
		"total":     q.Total,
		"used":      q.Used,
		"remaining": q.Remaining,
	})
}

// setup loads configuration and builds the dependencies shared by every command.
func setup(ctx context.Context, cmd *cli.Command) (*bootstrap.Dependencies, provider.Config, error) {
	if err := config.LoadEnvFile(cmd.String("env")); err != nil {
		return nil, provider.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, provider.Config{}, fmt.Errorf("load config: %w", err)
	}

	deps, err := bootstrap.NewDependencies(ctx, cfg, newLogger(cmd.Bool("verbose")))
	if err != nil {
		return nil, provider.Config{}, fmt.Errorf("initialize dependencies: %w", err)
	}

	pc := providerConfig(cmd, deps.DefaultProvider)
	if pc.Provider == "" {
		shutdown(deps)
		return nil, provider.Config{}, errors.New("no provider: pass --provider or set PROVIDER")
	}
	return deps, pc, nil
}

// providerConfig layers the command-line flags over the environment default.
func providerConfig(cmd *cli.Command, def provider.Config) provider.Config {
	pc := def
	if v := cmd.String("provider"); v != "" {
		pc.Provider = v
	}
	if v := cmd.String("base-url"); v != "" {
		pc.BaseURL = v
	}
	if v := cmd.String("api-key"); v != "" {
		pc.APIKey = v
	}
	if cmd.IsSet("model") {
		pc.PreferredModel = cmd.String("model")
	}
	return pc
}

// readReference accepts a URL, a data URI or a local file path.
func readReference(ref string) (*provider.ReferenceAsset, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return &provider.ReferenceAsset{URL: ref}, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read reference: %w", err)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("reference %s is %s, not an image", ref, mime.String())
	}
	return &provider.ReferenceAsset{Data: data, MIMEType: mime.String()}, nil
}

func toSubmitOutput(j *job.Job) submitOutput {
	out := submitOutput{
		ID:       j.ID,
		Status:   string(j.Status),
		Provider: j.Provider,
		Model:    j.Model,
		Degraded: j.Degraded,
		Polls:    j.Attempt,
	}
	if j.Asset != nil {
		out.Materialized = j.Asset.Materialized
		out.MIMEType = j.Asset.MIMEType
		out.Ref = j.Asset.Ref
		out.URL = j.Asset.URL
	}
	if j.Failure != nil {
		out.Error = j.Failure.Error()
	}
	for _, a := range j.Attempts {
		line := fmt.Sprintf("%s/%s (%s)", a.Provider, a.Model, a.Mode)
		if code := a.Code(); code != "" {
			line += ": " + code
		}
		out.Attempts = append(out.Attempts, line)
	}
	return out
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func shutdown(deps *bootstrap.Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = deps.Orchestrator.Shutdown(ctx)
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
