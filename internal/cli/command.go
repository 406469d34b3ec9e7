package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/wordaudio/internal"
)

// viperKeys maps config keys to the flags bound to them
var viperKeys = []struct {
	key  string
	flag string
}{
	{"input.csv", "csv"},
	{"input.delimiter", "delimiter"},
	{"job.rate", "rate"},
	{"job.timeout", "timeout"},
	{"job.keep_going", "keep-going"},
	{"job.breaker_failures", "breaker-failures"},
	{"output.directory", "output"},
	{"output.anki", "anki"},
	{"cache.file", "cache"},
	{"audio.backend", "backend"},
	{"audio.google_voices", "voice"},
	{"audio.google_gender", "gender"},
	{"audio.google_credentials", "google-credentials"},
	{"audio.openai_model", "openai-model"},
	{"audio.openai_voice", "openai-voice"},
	{"audio.openai_format", "openai-format"},
	{"audio.openai_speed", "openai-speed"},
	{"audio.openai_instruction", "openai-instruction"},
	{"audio.gemini_model", "gemini-model"},
	{"audio.gemini_voice", "gemini-voice"},
	{"audio.espeak_speed", "espeak-speed"},
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wordaudio",
		Short: "Multilingual word list to audio converter",
		Long: `wordaudio reads a word list with one column per language and writes
one audio file per row, containing the pronunciation of every column in
order. The header row names the language codes; the first column names
the output file.

Requests to the speech backend are throttled job-wide with --rate.

Examples:
  wordaudio                                  # Read words.csv, write to ./output
  wordaudio --csv vocab.csv --rate 5         # Up to 5 requests per second
  wordaudio --backend openai --keep-going    # Use OpenAI, skip failing rows
  wordaudio --list-voices fr-FR              # Show French voices`,
		Args:          cobra.NoArgs,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up flags
	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.wordaudio.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	// Local flags
	cmd.Flags().StringVar(&flags.CSVFile, "csv", flags.CSVFile, "Word list with a header row of language codes")
	cmd.Flags().StringVar(&flags.Rate, "rate", flags.Rate, "Maximum requests per second (invalid values fall back to 1)")
	cmd.Flags().StringVarP(&flags.OutputDir, "output", "o", flags.OutputDir, "Output directory")
	cmd.Flags().StringVar(&flags.Delimiter, "delimiter", flags.Delimiter, `Field delimiter (use "\t" or "tab" for TSV)`)
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", flags.Timeout, "Overall job timeout, 0 disables")
	cmd.Flags().BoolVar(&flags.KeepGoing, "keep-going", false, "Write the rows that succeeded even if others fail")
	cmd.Flags().StringVar(&flags.CacheFile, "cache", "", "SQLite file caching synthesized audio between runs")
	cmd.Flags().StringVar(&flags.ListVoices, "list-voices", "", "List the backend's voices for a language code and exit")
	cmd.Flags().BoolVar(&flags.Archive, "archive", false, "Move the output directory into ./archive and exit")
	cmd.Flags().BoolVar(&flags.Anki, "anki", false, "Also write anki_import.csv referencing the audio files")

	// Backend flags
	cmd.Flags().StringVar(&flags.Backend, "backend", flags.Backend, "Speech backend: google, openai, gemini, espeak")
	cmd.Flags().IntVar(&flags.BreakerFailures, "breaker-failures", flags.BreakerFailures, "Consecutive backend failures before requests are refused")

	// Google flags
	cmd.Flags().StringToStringVar(&flags.GoogleVoices, "voice", flags.GoogleVoices, "Google voice per language, e.g. fr-FR=fr-FR-Wavenet-A")
	cmd.Flags().StringVar(&flags.GoogleGender, "gender", flags.GoogleGender, "Google SSML voice gender: NEUTRAL, FEMALE, MALE")
	cmd.Flags().StringVar(&flags.GoogleCredentials, "google-credentials", "", "Google service account key file (default: application default credentials)")

	// OpenAI flags
	cmd.Flags().StringVar(&flags.OpenAIModel, "openai-model", flags.OpenAIModel, "OpenAI TTS model: tts-1, tts-1-hd, gpt-4o-mini-tts")
	cmd.Flags().StringVar(&flags.OpenAIVoice, "openai-voice", flags.OpenAIVoice, "OpenAI voice: alloy, ash, ballad, coral, echo, fable, onyx, nova, sage, shimmer, verse")
	cmd.Flags().StringVar(&flags.OpenAIFormat, "openai-format", flags.OpenAIFormat, "OpenAI audio format: mp3, wav, opus, aac, flac")
	cmd.Flags().Float64Var(&flags.OpenAISpeed, "openai-speed", flags.OpenAISpeed, "OpenAI speech speed (0.25 to 4.0)")
	cmd.Flags().StringVar(&flags.OpenAIInstruction, "openai-instruction", "", "Extra voice instructions for gpt-4o-mini-tts")

	// Gemini flags
	cmd.Flags().StringVar(&flags.GeminiModel, "gemini-model", flags.GeminiModel, "Gemini speech model")
	cmd.Flags().StringVar(&flags.GeminiVoice, "gemini-voice", flags.GeminiVoice, "Gemini prebuilt voice")

	// espeak-ng flags
	cmd.Flags().IntVar(&flags.ESpeakSpeed, "espeak-speed", flags.ESpeakSpeed, "espeak-ng words per minute (80 to 450)")

	// Bind flags to viper
	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	for _, k := range viperKeys {
		viper.BindPFlag(k.key, cmd.Flags().Lookup(k.flag))
	}
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".wordaudio" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".wordaudio")
	}

	// Environment variables, e.g. WORDAUDIO_JOB_RATE
	viper.SetEnvPrefix("WORDAUDIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// LoadConfig copies values from the config file and environment into flags
// that were not given on the command line
func LoadConfig(flags *Flags) {
	if viper.IsSet("input.csv") {
		flags.CSVFile = viper.GetString("input.csv")
	}
	if viper.IsSet("input.delimiter") {
		flags.Delimiter = viper.GetString("input.delimiter")
	}
	if viper.IsSet("job.rate") {
		flags.Rate = viper.GetString("job.rate")
	}
	if viper.IsSet("job.timeout") {
		flags.Timeout = viper.GetDuration("job.timeout")
	}
	if viper.IsSet("job.keep_going") {
		flags.KeepGoing = viper.GetBool("job.keep_going")
	}
	if viper.IsSet("job.breaker_failures") {
		flags.BreakerFailures = viper.GetInt("job.breaker_failures")
	}
	if viper.IsSet("output.directory") {
		flags.OutputDir = viper.GetString("output.directory")
	}
	if viper.IsSet("output.anki") {
		flags.Anki = viper.GetBool("output.anki")
	}
	if viper.IsSet("cache.file") {
		flags.CacheFile = viper.GetString("cache.file")
	}
	if viper.IsSet("audio.backend") {
		flags.Backend = viper.GetString("audio.backend")
	}
	if viper.IsSet("audio.google_voices") {
		flags.GoogleVoices = viper.GetStringMapString("audio.google_voices")
	}
	if viper.IsSet("audio.google_gender") {
		flags.GoogleGender = viper.GetString("audio.google_gender")
	}
	if viper.IsSet("audio.google_credentials") {
		flags.GoogleCredentials = viper.GetString("audio.google_credentials")
	}
	if viper.IsSet("audio.openai_model") {
		flags.OpenAIModel = viper.GetString("audio.openai_model")
	}
	if viper.IsSet("audio.openai_voice") {
		flags.OpenAIVoice = viper.GetString("audio.openai_voice")
	}
	if viper.IsSet("audio.openai_format") {
		flags.OpenAIFormat = viper.GetString("audio.openai_format")
	}
	if viper.IsSet("audio.openai_speed") {
		flags.OpenAISpeed = viper.GetFloat64("audio.openai_speed")
	}
	if viper.IsSet("audio.openai_instruction") {
		flags.OpenAIInstruction = viper.GetString("audio.openai_instruction")
	}
	if viper.IsSet("audio.gemini_model") {
		flags.GeminiModel = viper.GetString("audio.gemini_model")
	}
	if viper.IsSet("audio.gemini_voice") {
		flags.GeminiVoice = viper.GetString("audio.gemini_voice")
	}
	if viper.IsSet("audio.espeak_speed") {
		flags.ESpeakSpeed = viper.GetInt("audio.espeak_speed")
	}
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	// First check environment variable
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("audio.openai_key")
}

// GetGeminiKey retrieves the Gemini API key from environment or config
func GetGeminiKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("audio.gemini_key")
}
