package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/client"
	"storyforge/internal/config"
)

const defaultTimeout = 2 * time.Minute

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	server     string
	model      string
	genre      string
	voice      string
	style      string
	timeout    time.Duration
	verbose    bool

	// worker pool sizing from basic_config
	minWorkers int
	maxWorkers int
	workerIdle time.Duration
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "storyforge",
		Short: "Command line client for the StoryForge backend",
		Long: `storyforge - create stories with a StoryForge backend.

Settings come from flags, then the "client" section of the config file
(STORYFORGE_CONFIG or --config), then built-in defaults.

Examples:
  # Start an interactive session
  storyforge chat --genre mystery

  # One continuation, saved to the library
  storyforge generate "A lighthouse keeper finds a letter" --save "The Letter"

  # Illustrate a scene
  storyforge illustrate "A lighthouse in a storm" -o storm.png`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.applyConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (json or yaml)")
	flags.StringVarP(&opts.server, "server", "s", "", "backend base URL")
	flags.StringVarP(&opts.model, "model", "m", "", "text model id")
	flags.StringVarP(&opts.genre, "genre", "g", "", "story genre")
	flags.StringVar(&opts.voice, "voice", "", "narration voice")
	flags.StringVar(&opts.style, "style", "", "illustration style")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "how long to wait for the backend")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newChatCmd(opts),
		newGenerateCmd(opts),
		newModelsCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newIllustrateCmd(opts),
		newNarrateCmd(opts),
	)
	return root
}

// applyConfig fills unset flags from the config file. A missing default
// config file is not an error.
func (o *options) applyConfig(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		path = os.Getenv("STORYFORGE_CONFIG")
	}
	var cc config.ClientConfig
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cc = cfg.Client
		o.minWorkers = cfg.BasicConfig.MinWorkers
		o.maxWorkers = cfg.BasicConfig.MaxWorkers
		o.workerIdle = time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute
	}

	setDefault(&o.server, cc.ServerURL, client.DefaultBaseURL)
	setDefault(&o.model, cc.Model, "")
	setDefault(&o.genre, cc.Genre, "")
	setDefault(&o.voice, cc.Voice, "")
	setDefault(&o.style, cc.ImageStyle, "")
	if !cmd.Flags().Changed("timeout") && cc.Timeout > 0 {
		o.timeout = time.Duration(cc.Timeout) * time.Second
	}
	return nil
}

func setDefault(dst *string, fromConfig, fallback string) {
	if *dst != "" {
		return
	}
	if fromConfig != "" {
		*dst = fromConfig
		return
	}
	*dst = fallback
}
