package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hrygo/repurpose/ai/prompts"
	"github.com/hrygo/repurpose/internal/version"
)

// errRunFailed marks a run that ended in FAILED; the report has already
// been printed, so main only sets the exit code.
var errRunFailed = errors.New("run failed")

var rootCmd = &cobra.Command{
	Use:   "repurpose",
	Short: "Repurpose a blog post into a summary, social media posts and a newsletter with LLM workflows.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// A missing .env file is fine.
		_ = godotenv.Load()
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the Reflexion pipeline: draft, critique and revise each artifact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorkflow(cmd.Context(), commandPipeline)
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the tool-calling agent until it calls finish",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorkflow(cmd.Context(), commandAgent)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run both workflows and ask the model which output is better",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorkflow(cmd.Context(), commandCompare)
	},
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the prompt templates in effect, including --prompts overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := prompts.Load(viper.GetString("prompts"))
		if err != nil {
			return err
		}
		return listPrompts(cmd.OutOrStdout(), reg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "repurpose", version.StringFull())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("post", "sample_blog_post.json", "path to the blog post JSON file")
	flags.String("provider", "", "LLM provider (openai, deepseek, zai, siliconflow, dashscope, openrouter, ollama, anthropic)")
	flags.String("model", "", "model name; defaults per provider")
	flags.String("base-url", "", "OpenAI-compatible endpoint; defaults per provider")
	flags.Int("max-revisions", 3, "Reflexion revisions per artifact")
	flags.Int("max-steps", 20, "agent model turns")
	flags.Float64("quality-threshold", 0.8, "score a draft needs to pass the quality gate")
	flags.String("gate", "", `CEL expression replacing the threshold gate, e.g. "score >= 0.8 && size(issues) == 0"`)
	flags.String("judge", "llm", "critique strategy: llm (JSON report) or keyword")
	flags.String("prompts", "", "YAML file overriding prompt templates")
	flags.String("format", "text", "output format: text, json, markdown or html")
	flags.Bool("transcript", false, "print the agent conversation to stderr")
	flags.Bool("metrics", false, "print Prometheus metrics to stderr after the run")
	flags.Float64("rps", 0, "completion requests per second; 0 disables rate limiting")
	flags.Int("max-retries", 3, "retries of transient completion errors")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})

	// REPURPOSE_MAX_REVISIONS, REPURPOSE_LOG_LEVEL, ...
	viper.SetEnvPrefix("repurpose")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(pipelineCmd, agentCmd, compareCmd, promptsCmd, versionCmd)
}

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		cancel()
		os.Exit(1)
	}
}
