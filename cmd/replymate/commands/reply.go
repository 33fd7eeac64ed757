package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/engine"
	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
	"github.com/mrviduus/ReplyMate-sub000/internal/metrics"
	"github.com/mrviduus/ReplyMate-sub000/internal/modelload"
	"github.com/mrviduus/ReplyMate-sub000/internal/output"
	"github.com/mrviduus/ReplyMate-sub000/internal/provider"
)

var replyCmd = &cobra.Command{
	Use:   "reply [post text]",
	Short: "Generate a reply to a post",
	Long: `Generate a short professional reply to the given post text.

The post is taken from the argument, or from stdin when no argument is
given. The local provider needs no API key; remote providers read the key
from --api-key or the usual environment variables.

Examples:
  # Local model
  replymate reply "We just hit 10k users!"

  # Post from stdin, with thread context
  cat post.txt | replymate reply --context "OP asked about pricing"

  # Remote provider, JSON output
  replymate reply -p anthropic -o json "Shipped our biggest release yet."`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReply,
}

func init() {
	rootCmd.AddCommand(replyCmd)

	flags := replyCmd.Flags()

	// Provider settings
	flags.StringP("provider", "p", "local", "provider: local, openai, anthropic, gemini")
	flags.StringP("model", "m", "", "model name (provider-specific)")
	flags.StringP("api-key", "k", "", "API key (or use env var)")
	flags.String("base-url", "", "custom API base URL")
	flags.Duration("timeout", 30*time.Second, "per-call timeout")

	// Generation settings
	flags.StringArray("context", nil, "prior thread line (can be repeated)")
	flags.Int("max-tokens", 0, "max tokens to generate (0 = provider default)")
	flags.Float64("temperature", 0, "sampling temperature 0-1 (0 = greedy; omit for provider default)")
	flags.Float64("top-p", 0, "nucleus sampling 0-1 (0 = provider default)")

	flags.String("rules", "", "YAML file with extra output-cleanup rules")

	// Output settings
	flags.StringP("output", "o", "text", "output format: text, json, jsonl, yaml")
	flags.Bool("show-progress", true, "show model download progress on stderr")

	_ = viper.BindPFlag("provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("base_url", flags.Lookup("base-url"))
}

func runReply(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	providerType, err := parseProviderType(viper.GetString("provider"))
	if err != nil {
		logError("%v", err)
		return err
	}

	formatStr, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		logError("%v", err)
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	cfg := provider.Config{
		APIKey:  viper.GetString("api_key"),
		Model:   viper.GetString("model"),
		BaseURL: viper.GetString("base_url"),
		Timeout: timeout,
	}

	showProgress, _ := cmd.Flags().GetBool("show-progress")
	var progress modelload.ProgressFunc
	if showProgress && !viper.GetBool("quiet") {
		progress = printProgress
	}

	var extraRules []cleaner.Rule
	if rulesPath, _ := cmd.Flags().GetString("rules"); rulesPath != "" {
		extraRules, err = cleaner.LoadRules(rulesPath)
		if err != nil {
			logError("%v", err)
			return err
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	loader := modelload.New(modelload.Config{OnAttempt: m.RecordModelLoad})
	registry := provider.NewRegistry(loader, progress)
	eng := engine.New(registry, m, engine.Config{
		CallTimeout:     timeout,
		ExtraCleanRules: extraRules,
	})

	if err := eng.SetProvider(providerType, cfg); err != nil {
		logError("%v", err)
		return err
	}

	contextLines, _ := cmd.Flags().GetStringArray("context")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	topP, _ := cmd.Flags().GetFloat64("top-p")

	req := engine.Request{
		SourceText: source,
		Context:    contextLines,
		MaxTokens:  maxTokens,
		TopP:       topP,
	}
	if cmd.Flags().Changed("temperature") {
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		req.Temperature = &temperature
	}

	res, err := eng.GenerateReply(ctx, req)
	if err != nil {
		// Degrade to a generic reply rather than a raw error dump.
		logInfo("generation failed (%s), using a fallback reply", provider.KindOf(err))
		logger.Debug("generation error", "error", err)
		fmt.Fprintln(cmd.OutOrStdout(), engine.FallbackText(source, err))
		return nil
	}

	writer, err := output.NewWriter(cmd.OutOrStdout(), format)
	if err != nil {
		return err
	}
	if err := writer.Write(res); err != nil {
		logError("failed to write output: %v", err)
		return err
	}
	return writer.Close()
}

// readSource takes the post text from the argument or stdin.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading post from stdin: %w", err)
	}
	source := strings.TrimSpace(string(data))
	if source == "" {
		return "", fmt.Errorf("no post text: pass it as an argument or on stdin")
	}
	return source, nil
}

func parseProviderType(s string) (provider.Type, error) {
	switch provider.Type(strings.ToLower(s)) {
	case provider.TypeLocal, "":
		return provider.TypeLocal, nil
	case provider.TypeOpenAI:
		return provider.TypeOpenAI, nil
	case provider.TypeAnthropic:
		return provider.TypeAnthropic, nil
	case provider.TypeGemini:
		return provider.TypeGemini, nil
	default:
		return "", fmt.Errorf("unknown provider %q (use local, openai, anthropic, or gemini)", s)
	}
}

// printProgress renders model acquisition progress on stderr.
func printProgress(p modelload.Progress) {
	if p.Stage == modelload.StageDownloading && p.Fraction > 0 {
		fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", p.Stage, p.Fraction*100)
		return
	}
	fmt.Fprintf(os.Stderr, "\r%-20s", p.Stage)
	if p.Stage == modelload.StageComplete {
		fmt.Fprintln(os.Stderr)
	}
}
