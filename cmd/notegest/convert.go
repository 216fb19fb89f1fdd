package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/notegest/internal/imagesvc"
	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/parser"
	"github.com/dgallion1/notegest/internal/pipeline"
	"github.com/dgallion1/notegest/internal/render"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a OneNote export into an Obsidian vault or Logseq graph",
	Long: `Convert reads an export laid out as <input>/<Section>/<page>.xml (a
directory, a zip archive of that layout, or a single page file) and writes
the rendered notes below --output.

Pages that fail to parse are reported and skipped. With --manifest every
page outcome is recorded so "notegest report" can list the failures later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := convertOptions{
			Input:    viper.GetString("input"),
			Output:   viper.GetString("output"),
			Dialect:  viper.GetString("dialect"),
			Notebook: viper.GetString("notebook"),
			Section:  viper.GetString("section"),
			Manifest: viper.GetString("manifest"),
			ImageURL: viper.GetString("image-service-url"),
			ImageKey: viper.GetString("image-service-key"),
		}
		res, err := runConvert(cmd.Context(), opts, newLogger())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, opts.Output)
		if res.Pages > 0 && res.Converted == 0 {
			return fmt.Errorf("no pages converted")
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringP("input", "i", "", "export directory, zip archive or page file")
	convertCmd.Flags().StringP("output", "o", "out", "output directory")
	convertCmd.Flags().String("dialect", string(render.Obsidian), "output dialect: obsidian or logseq")
	convertCmd.Flags().String("notebook", "OneNote", "notebook name recorded on logseq pages")
	convertCmd.Flags().String("section", "Imported", "section for pages outside a section folder")
	convertCmd.Flags().String("image-service-url", "", "image extraction service that receives the image map")
	convertCmd.Flags().String("image-service-key", "", "bearer key for the image service")
	convertCmd.Flags().Bool("json", false, "print the run result as JSON")

	for _, name := range []string{"input", "output", "dialect", "notebook", "section", "image-service-url", "image-service-key"} {
		viper.BindPFlag(name, convertCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(convertCmd)
}

type convertOptions struct {
	Input    string
	Output   string
	Dialect  string
	Notebook string
	Section  string
	Manifest string
	ImageURL string
	ImageKey string
}

func runConvert(ctx context.Context, opts convertOptions, log *slog.Logger) (pipeline.Result, error) {
	if opts.Input == "" {
		return pipeline.Result{}, fmt.Errorf("--input is required")
	}
	dialect, err := render.ParseDialect(opts.Dialect)
	if err != nil {
		return pipeline.Result{}, err
	}
	inputs, err := readInput(opts.Input, opts.Section)
	if err != nil {
		return pipeline.Result{}, err
	}
	if len(inputs) == 0 {
		return pipeline.Result{}, fmt.Errorf("no OneNote pages found in %s", opts.Input)
	}
	log.Debug("read export", "input", opts.Input, "pages", len(inputs))

	conv, err := pipeline.NewConverter(dialect, pipeline.ConverterOptions{Notebook: opts.Notebook, OutputRoot: opts.Output})
	if err != nil {
		return pipeline.Result{}, err
	}

	runID := pipeline.NewJobID()
	popts := pipeline.Options{Log: log}
	var run *manifest.Run
	if opts.Manifest != "" {
		store, err := manifest.Open(opts.Manifest)
		if err != nil {
			return pipeline.Result{}, err
		}
		defer store.Close()
		if run, err = store.BeginRun(ctx, runID, string(dialect), opts.Input); err != nil {
			return pipeline.Result{}, err
		}
		popts.Recorder = pipeline.ManifestRecorder(run)
	}

	res, err := pipeline.Convert(ctx, conv, inputs, pipeline.DirSink{Root: opts.Output}, popts)
	if run != nil {
		if ferr := run.Finish(ctx, res.Totals()); ferr != nil {
			log.Warn("manifest finish failed", "error", ferr)
		}
	}
	if err != nil {
		return res, err
	}

	if images := conv.Images(); opts.ImageURL != "" && len(images) > 0 {
		client := imagesvc.NewClient(opts.ImageURL, opts.ImageKey)
		defer client.Close()
		if err := pipeline.SubmitImageMap(ctx, client, log, runID, dialect, images); err != nil {
			return res, fmt.Errorf("submit image map: %w", err)
		}
	}
	return res, nil
}

// readInput accepts an export directory, a zip of one, or a single page.
func readInput(input, section string) ([]pipeline.PageInput, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return pipeline.ReadDir(input, section)
	}
	if info.Size() > pipeline.MaxPageBytes && !strings.EqualFold(filepath.Ext(input), ".zip") {
		return nil, fmt.Errorf("%s exceeds %d bytes", input, pipeline.MaxPageBytes)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	if parser.IsSupportedExtension(input) {
		return []pipeline.PageInput{{Section: section, Name: filepath.Base(input), Data: data}}, nil
	}
	return pipeline.ReadArchive(data, section)
}

func printResult(out, errOut io.Writer, res pipeline.Result, dir string) {
	fmt.Fprintf(out, "Converted %d/%d pages in %d sections to %s (%s)\n", res.Converted, res.Pages, res.Sections, dir, res.Dialect)
	fmt.Fprintf(out, "  files: %d  images: %d  unrecognized: %d\n", res.Files, res.Images, res.Unrecognized)
	if res.Dialect == render.Logseq {
		fmt.Fprintf(out, "  tasks: %d  meetings: %d  block refs: %d\n", res.Summary.Tasks, res.Summary.Meetings, res.Summary.BlockRefs)
	}
	if res.Failed == 0 {
		return
	}
	fmt.Fprintf(errOut, "%d pages failed:\n", res.Failed)
	for _, o := range res.Outcomes {
		if !o.OK {
			fmt.Fprintf(errOut, "  %s/%s: %s\n", o.Section, o.Name, o.Error)
		}
	}
}
