package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kmlawson/lmsp/config"
	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/llm"
	"github.com/kmlawson/lmsp/prompt"
	"github.com/kmlawson/lmsp/render"
	"github.com/kmlawson/lmsp/sanitize"
)

func (a *app) run(cmd *cobra.Command, args []string) error {
	a.logger.SetLevel(logging.ForVerbosity(a.flags.verbose))
	ctx := cmd.Context()

	if a.flags.configSchema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(schema))
		return err
	}

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	client := a.newClient(cfg)
	renderer := a.newRenderer(cmd, cfg)
	catalog := &llm.FallbackCatalog{Primary: client, Secondary: a.lms, Logger: a.logger}

	switch {
	case a.flags.checkServer:
		status := client.ServerStatus(ctx)
		if err := renderer.ServerStatus(status); err != nil {
			return err
		}
		if !status.Running {
			return &quietError{errs.Newf(errs.ErrorTypeServerUnavailable, "server is not running")}
		}
		return nil
	case a.flags.listModels:
		models, err := catalog.LoadedModels(ctx)
		if err != nil {
			return err
		}
		return renderer.Models(models)
	case a.flags.listAvailable:
		models, err := a.lms.Available(ctx)
		if err != nil {
			return err
		}
		return renderer.Available(models)
	}

	text, err := a.composePrompt(args, cfg.PipeMode)
	if err != nil {
		return err
	}

	resolver := llm.NewResolver(catalog, a.lms, cfg.AutoLoad, a.logger)
	model, err := resolver.Resolve(ctx, cfg.Model)
	if err != nil {
		return err
	}
	a.logger.Info("Sending prompt", "model", model, "bytes", len(text), "stream", !cfg.Wait)

	res, err := a.complete(ctx, client, renderer, model, text, cfg.Wait)
	if err != nil {
		return err
	}
	if cfg.Stats {
		return renderer.Stats(res)
	}
	return nil
}

func (a *app) newClient(cfg *config.Config) *llm.Client {
	opts := []llm.ClientOption{
		llm.WithLogger(a.logger),
		llm.WithTimeout(cfg.TimeoutDuration()),
		llm.WithTemperature(cfg.Temperature),
	}
	switch cfg.TokenCount {
	case config.TokenCountChunks:
		opts = append(opts, llm.WithTokenCounter(llm.ChunkCounter{}, false))
	case config.TokenCountTiktoken:
		counter, err := llm.NewTiktokenCounter()
		if err != nil {
			a.logger.Warn("Falling back to chunk counting", "error", err)
		} else {
			opts = append(opts, llm.WithTokenCounter(counter, false))
		}
	}
	if a.baseURL != "" {
		opts = append(opts, llm.WithBaseURL(a.baseURL))
	}
	return llm.NewClient(cfg.Port, opts...)
}

// newRenderer picks the output format. Decorations are dropped when stdout
// is not a terminal unless a format was asked for explicitly.
func (a *app) newRenderer(cmd *cobra.Command, cfg *config.Config) *render.Renderer {
	format := cfg.Format
	explicit := cmd.Flags().Changed("format") || a.flags.plain
	if !explicit && !a.stdoutIsTTY() {
		format = render.FormatPlain
	}
	return render.New(a.out, format,
		render.WithStatsWriter(a.errOut),
		render.WithWidth(a.stdoutWidth()),
	)
}

// composePrompt reads piped input, when stdin is not a terminal, and combines
// it with the words of the argument.
func (a *app) composePrompt(args []string, mode prompt.PipeMode) (string, error) {
	var piped string
	if a.in != nil && !a.stdinIsTTY() {
		data, err := sanitize.ReadLimited(a.in, sanitize.MaxInputBytes)
		if err != nil {
			return "", err
		}
		piped = string(data)
		a.logger.Debug("Read piped input", "bytes", len(data))
	}

	text, err := prompt.Compose(piped, strings.Join(args, " "), mode)
	if err != nil {
		return "", err
	}
	return sanitize.ValidatePrompt(text)
}

func (a *app) complete(ctx context.Context, client *llm.Client, renderer *render.Renderer, model, text string, wait bool) (*llm.Result, error) {
	if wait {
		res, err := client.Complete(ctx, model, text)
		if err != nil {
			return nil, err
		}
		return res, renderer.Text(res.Text)
	}

	stream, err := client.Stream(ctx, model, text)
	if err != nil {
		return nil, err
	}
	w := renderer.StreamWriter()
	res, err := client.Collect(ctx, stream, w.Write)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
