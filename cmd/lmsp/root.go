package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kmlawson/lmsp/config"
	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/llm"
	"github.com/kmlawson/lmsp/prompt"
	"github.com/kmlawson/lmsp/sanitize"
)

// cmdFlags holds all command-line flags
type cmdFlags struct {
	model         string
	port          int
	pipeMode      string
	format        string
	timeout       int
	verbose       bool
	listModels    bool
	listAvailable bool
	checkServer   bool
	wait          bool
	stats         bool
	plain         bool
	autoLoad      bool
	configSchema  bool
}

// lmsTool is the part of the lms command line tool the command uses.
type lmsTool interface {
	llm.Catalog
	llm.Loader
	Available(ctx context.Context) ([]string, error)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lmsp [prompt...]",
		Short: "Send a prompt to a model loaded in LM Studio",
		Long: fmt.Sprintf(`Send a prompt to a model loaded in LM Studio and print the reply.

Text piped on standard input is combined with the prompt argument according
to the pipe mode: append puts it after the prompt, prepend before it, and
replace uses the argument alone when one is given.

Configuration file: %s
Environment overrides use the %s prefix, e.g. %sMODEL.`, a.configPath, config.EnvPrefix, config.EnvPrefix),
		Example: `  lmsp "What is the capital of France?"
  cat article.txt | lmsp "Summarize this:"
  lmsp -m qwen2.5-7b-instruct --stats "Explain goroutines"
  lmsp --list-models`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.flags.model, "model", "m", "", "model to use (default: configured model, else the first loaded one)")
	f.IntVarP(&a.flags.port, "port", "p", 1234, "LM Studio server port")
	f.StringVar(&a.flags.pipeMode, "pipe-mode", "", "how piped input combines with the prompt: replace, append or prepend")
	f.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to standard error")
	f.BoolVar(&a.flags.listModels, "list-models", false, "list loaded models and exit")
	f.BoolVar(&a.flags.listAvailable, "list-available", false, "list downloaded models (lms ls) and exit")
	f.BoolVar(&a.flags.checkServer, "check-server", false, "check whether the LM Studio server is running and exit")
	f.BoolVarP(&a.flags.wait, "wait", "w", false, "wait for the complete reply instead of streaming")
	f.BoolVar(&a.flags.stats, "stats", false, "print token count and timing after the reply")
	f.BoolVar(&a.flags.plain, "plain", false, "print the reply without formatting (same as --format plain)")
	f.StringVar(&a.flags.format, "format", "", "output format: plain, decorated or markdown")
	f.BoolVar(&a.flags.autoLoad, "auto-load", false, "load the requested model with lms if it is not loaded")
	f.IntVar(&a.flags.timeout, "timeout", 0, "request timeout in seconds")
	f.BoolVar(&a.flags.configSchema, "config-schema", false, "print the JSON schema of the configuration file and exit")
	cmd.MarkFlagsMutuallyExclusive("plain", "format")
	cmd.MarkFlagsMutuallyExclusive("list-models", "list-available", "check-server", "config-schema")

	return cmd
}

// flagOptions turns the flags given on the command line into config
// overrides. Flags left at their defaults do not override the file.
func (a *app) flagOptions(cmd *cobra.Command) ([]config.ConfigOption, error) {
	changed := cmd.Flags().Changed
	var opts []config.ConfigOption

	if changed("model") {
		if err := sanitize.ValidateModelName(a.flags.model); err != nil {
			return nil, err
		}
		opts = append(opts, config.SetModel(a.flags.model))
	}
	if changed("port") {
		if err := sanitize.ValidatePort(a.flags.port); err != nil {
			return nil, err
		}
		opts = append(opts, config.SetPort(a.flags.port))
	}
	if changed("pipe-mode") {
		mode, err := prompt.ParsePipeMode(a.flags.pipeMode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.SetPipeMode(mode))
	}
	if changed("format") {
		opts = append(opts, config.SetFormat(strings.ToLower(a.flags.format)))
	}
	if a.flags.plain {
		opts = append(opts, config.SetFormat(config.FormatPlain))
	}
	if changed("timeout") {
		if err := sanitize.ValidateTimeout(a.flags.timeout); err != nil {
			return nil, err
		}
		opts = append(opts, config.SetTimeout(a.flags.timeout))
	}
	if a.flags.wait {
		opts = append(opts, config.SetWait(true))
	}
	if a.flags.stats {
		opts = append(opts, config.SetStats(true))
	}
	if a.flags.autoLoad {
		opts = append(opts, config.SetAutoLoad(true))
	}
	return opts, nil
}

// loadConfig layers the configuration file, the environment and the flags.
// A broken file or environment falls back with a warning; bad flags fail.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := a.configPath
	if created, err := config.Ensure(path); err != nil {
		a.logger.Warn("Cannot create configuration file", "path", path, "error", sanitize.Terminal(err.Error()))
	} else if created {
		fmt.Fprintf(a.errOut, "Created default configuration at %s\n", sanitize.Terminal(path))
	}

	cfg := config.LoadOrDefault(path, a.logger)
	if err := config.ApplyEnv(cfg, config.DotenvPath(path)); err != nil {
		a.logger.Warn("Ignoring environment overrides", "error", sanitize.Terminal(err.Error()))
	}

	opts, err := a.flagOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err = config.ApplyOptions(cfg, opts...)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, "invalid command line option", err)
	}
	return cfg, nil
}
