package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/config"
	"github.com/spacecat/sage/internal/export"
	"github.com/spacecat/sage/internal/models"
	"github.com/spf13/cobra"
)

// captionFlags are the per-run overrides shared by caption and batch
type captionFlags struct {
	modelType     string
	model         string
	captionType   string
	captionLength string
	customPrompt  string
	customName    string
	extraOptions  []string
}

func (f *captionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.modelType, "model-type", "", "Model backend: openai, vllm, gemini, ollama")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name override")
	cmd.Flags().StringVarP(&f.captionType, "type", "t", "", "Caption type (e.g. Descriptive, \"Training Prompt\", \"Booru tag list\")")
	cmd.Flags().StringVarP(&f.captionLength, "length", "l", "", "Caption length: any, short, medium-length, long, or a word count")
	cmd.Flags().StringVar(&f.customPrompt, "prompt", "", "Custom prompt (used with --type Custom/VQA)")
	cmd.Flags().StringVar(&f.customName, "name", "", "Name substituted for {name} in extra options")
	cmd.Flags().StringArrayVar(&f.extraOptions, "option", nil, "Extra requirement appended to the prompt (repeatable)")
}

// apply overlays the flags on the saved settings
func (f *captionFlags) apply(s config.Settings) *models.CaptionSettings {
	if f.modelType != "" {
		s.ModelType = models.ModelType(f.modelType)
	}
	if f.captionType != "" {
		s.Prompts.CaptionType = f.captionType
	}
	if f.captionLength != "" {
		s.Prompts.CaptionLength = f.captionLength
	}
	if f.customPrompt != "" {
		s.Prompts.CustomPrompt = f.customPrompt
	}
	if f.customName != "" {
		s.Prompts.CustomName = f.customName
	}
	if len(f.extraOptions) > 0 {
		s.Prompts.ExtraOptions = f.extraOptions
	}
	settings := s.CaptionSettings()
	if f.model != "" {
		settings.Endpoint.Model = f.model
	}
	return settings
}

func newCaptionCmd(a *app) *cobra.Command {
	var flags captionFlags

	cmd := &cobra.Command{
		Use:   "caption IMAGE",
		Short: "Generate a caption for one workspace image",
		Long: `Generates a caption for a single image in the session workspace and
stores it. Settings come from the settings file; flags override them for
this call only.`,
		Example: `  # Caption with saved settings
  sage caption cat.jpg

  # Ask a local Ollama model for a short tag list
  sage caption cat.jpg --model-type ollama --model llava --type "Booru tag list" --length short`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			settings := flags.apply(s)

			sess, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			_, out := sess.GenerateCaption(ctx, args[0], settings)
			outcome := <-out
			if !outcome.OK() {
				return fmt.Errorf("%s: %s: %s", outcome.ImageName, outcome.ErrorKind, outcome.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.Caption)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		flags      captionFlags
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "batch [IMAGE...]",
		Short: "Generate captions for several workspace images",
		Long: `Captions images one at a time, in the order given. With no arguments every
image in the workspace is captioned. Ctrl+C aborts the request in flight, so
that image is reported as cancelled and the rest are skipped. Captions already
generated are kept.`,
		Example: `  # Caption the whole workspace and write a report
  sage batch --report run.yaml

  # Caption two images as training prompts
  sage batch a.jpg b.jpg --type "Training Prompt"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			settings := flags.apply(s)

			sess, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			images := args
			if len(images) == 0 {
				if images, err = sess.ImageNames(ctx); err != nil {
					return err
				}
			}
			if len(images) == 0 {
				return fmt.Errorf("no images in workspace %s", sess.Dir())
			}

			runID, events := sess.GenerateBatch(ctx, images, settings)
			slog.Info("Batch started", "run_id", runID, "images", len(images), "model_type", settings.Endpoint.ModelType)

			var result *captioning.BatchResult
			for ev := range events {
				if ev.Progress != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", ev.Progress.CurrentIndex, ev.Progress.Total, ev.Progress.ImageName)
				}
				if ev.Terminal() {
					result = ev.Result
				}
			}
			if result == nil {
				return fmt.Errorf("batch %s ended without a result", runID)
			}

			printResult(cmd.OutOrStdout(), *result)

			if reportPath != "" {
				if err := export.NewReport(settings, *result).SaveYAML(reportPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", reportPath)
			}
			if result.Status == captioning.EventBatchCancelled {
				return ctx.Err()
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write a YAML run report to this path")
	return cmd
}

func printResult(w io.Writer, result captioning.BatchResult) {
	for _, o := range result.Outcomes {
		switch o.Status {
		case captioning.StatusSuccess:
			fmt.Fprintf(w, "ok      %s\n", o.ImageName)
		case captioning.StatusFailure:
			fmt.Fprintf(w, "failed  %s (%s: %s)\n", o.ImageName, o.ErrorKind, o.Message)
		default:
			fmt.Fprintf(w, "%-7s %s\n", o.Status, o.ImageName)
		}
	}
	sum := result.Summary()
	fmt.Fprintf(w, "\n%s: %d succeeded, %d failed, %d cancelled (of %d)\n",
		result.Status, sum.Succeeded, sum.Failed, sum.Cancelled, sum.Total)
}
