package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/voxcache/voxcache/internal/synth"
	"github.com/voxcache/voxcache/internal/tts"
)

var (
	sayEffects string
	sayOutput  string
)

var sayCmd = &cobra.Command{
	Use:     "say TEXT",
	Short:   "Synthesize text once and write the WAV audio",
	Long:    paragraph(fmt.Sprintf("\n%s the text through the cache and write the WAV audio to a file or to stdout.", keyword("Speak"))),
	Example: paragraph("voxcache say \"hello world\" -o hello.wav\nvoxcache say --effects whispered,auto-breaths \"good night\" > night.wav"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		effects, err := tts.ParseEffects(sayEffects)
		if err != nil {
			return err
		}
		req := synth.Request{Text: strings.Join(args, " "), Effects: effects}
		if err := tts.ValidateText(req.Text); err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if sayOutput == "" || sayOutput == "-" {
			if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return errors.New("refusing to write audio to a terminal: use -o or redirect stdout")
			}
		}

		p, err := buildPipeline(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				log.Error("Unable to flush voice index", "err", err)
			}
		}()

		res, err := p.orchestrator.Resolve(cmd.Context(), req)
		if err != nil {
			return err
		}

		if sayOutput != "" && sayOutput != "-" {
			if err := os.WriteFile(sayOutput, res.Audio, 0o644); err != nil {
				return fmt.Errorf("unable to write audio: %w", err)
			}
			log.Info("Wrote audio", "path", sayOutput, "size", humanize.Bytes(uint64(len(res.Audio))), "result", res)
			return nil
		}
		if _, err := out.Write(res.Audio); err != nil {
			return fmt.Errorf("unable to write audio: %w", err)
		}
		log.Debug("Wrote audio to stdout", "result", res)
		return nil
	},
}

func init() {
	sayCmd.Flags().StringVarP(&sayEffects, "effects", "e", "", "comma-separated effects: whispered, auto-breaths")
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "", "write audio to this file instead of stdout")
}
