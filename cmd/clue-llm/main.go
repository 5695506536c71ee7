package main

import (
	"io"
	"os"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/cmd/clue-llm/cmds"
	"github.com/cxcscmu/LLM-Interviewer/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "clue"

var rootCmd = &cobra.Command{
	Use:   "clue-llm",
	Short: "clue-llm runs chatbot sessions followed by an LLM-led interview",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initConfig(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix(envPrefix)

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.clue-llm")
		viper.AddConfigPath("/etc/clue-llm")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/clue-llm")
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())
	if err := config.BindLegacyEnv(viper.GetViper(), envPrefix); err != nil {
		return err
	}

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	// this still won't pick up on --verbose to show debug logging when the commands
	// are parsed, but at least it will configure it based on the config file
	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28,    //days
					Compress:   false, // disabled by default
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.clue-llm/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	// model families
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().String("openai-base-url", "", "OpenAI base URL")
	rootCmd.PersistentFlags().String("google-api-key", "", "Google Generative AI API key")
	rootCmd.PersistentFlags().String("together-api-key", "", "TogetherAI API key")
	rootCmd.PersistentFlags().String("together-base-url", config.DefaultTogetherBaseURL, "TogetherAI base URL")
	rootCmd.PersistentFlags().String("bedrock-api-key", "", "Bedrock proxy API key")
	rootCmd.PersistentFlags().String("bedrock-base-url", "", "Bedrock proxy base URL")
	rootCmd.PersistentFlags().String("ollama-host", "", "Ollama host (default from OLLAMA_HOST)")
	rootCmd.PersistentFlags().Duration("request-timeout", config.DefaultRequestTimeout, "Upper bound of a streamed reply")
	rootCmd.PersistentFlags().String("models-file", "", "YAML model catalog replacing the built-in one")

	// storage
	rootCmd.PersistentFlags().String("store", "memory", "Record store (memory, sqlite, yaml, redis)")
	rootCmd.PersistentFlags().String("store-dsn", "", "sqlite file, yaml directory or redis address")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initConfig(rootCmd, configFile)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(cmds.NewServeCommand())
	rootCmd.AddCommand(cmds.NewChatCommand())
	rootCmd.AddCommand(cmds.NewExportCommand())

	modelsCmd, err := cmds.NewModelsCommand()
	cobra.CheckErr(err)
	rootCmd.AddCommand(modelsCmd)

	insightsCmd, err := cmds.NewInsightsCommand()
	cobra.CheckErr(err)
	rootCmd.AddCommand(insightsCmd)
}
