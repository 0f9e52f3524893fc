package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/spf13/cobra"
)

const outputPermissions = 0o600

var (
	errTextRequired = errors.New("--text or --text-file is required")
	errTextTooLong  = errors.New("text exceeds server.max_input_chars")
)

type sayFlags struct {
	text     string
	textFile string
	voice    string
	format   string
	speed    float64
	output   string
}

func newSayCommand(configPath *string) *cobra.Command {
	var flags sayFlags

	cmd := &cobra.Command{
		Use:   "say",
		Short: "Synthesize text once and write the audio to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer env.close()

			text, err := flags.resolveText()
			if err != nil {
				return err
			}

			if utf8.RuneCountInString(text) > env.cfg.Server.MaxInputChars {
				return fmt.Errorf("%w (%d)", errTextTooLong, env.cfg.Server.MaxInputChars)
			}

			format, err := core.ParseFormat(flags.format)
			if err != nil {
				return err
			}

			engine, err := newGuardedEngine(env.cfg, nil, env.log)
			if err != nil {
				return err
			}

			result, err := engine.Synthesize(cmd.Context(), core.NewRequest(text, flags.voice, format, flags.speed))
			if err != nil {
				return err
			}

			err = os.WriteFile(flags.output, result.Audio, outputPermissions)
			if err != nil {
				return fmt.Errorf("failed to write audio file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes of %s to %s\n", len(result.Audio), result.Format, flags.output)

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.text, "text", "", "Text to synthesize")
	cmd.Flags().StringVar(&flags.textFile, "text-file", "", "File holding the text to synthesize")
	cmd.Flags().StringVar(&flags.voice, "voice", core.DefaultVoice, "Voice id")
	cmd.Flags().StringVar(&flags.format, "format", string(core.FormatWAV), "Requested audio format")
	cmd.Flags().Float64Var(&flags.speed, "speed", core.DefaultSpeed, "Speech rate multiplier (0.25-4.0)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "output.wav", "Output file path")

	return cmd
}

func (f sayFlags) resolveText() (string, error) {
	text := f.text

	if f.textFile != "" {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}

		text = string(data)
	}

	if strings.TrimSpace(text) == "" {
		return "", errTextRequired
	}

	return text, nil
}
