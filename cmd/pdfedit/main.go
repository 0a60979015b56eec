// Command pdfedit renders a PDF, applies annotations and replayed editor
// events to it and writes the flattened result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/builder"
	"github.com/wudi/pdfedit/editor"
	"github.com/wudi/pdfedit/export"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/ocr/tesseract"
	"github.com/wudi/pdfedit/render"
	"github.com/wudi/pdfedit/writer"
)

type options struct {
	pdfPath     string
	annotations string
	session     string
	outDir      string
	runs        bool
	ocr         bool
	languages   []string
	scale       float64
	strict      bool
	clampDrag   bool
	compress    bool
	verbose     bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfedit: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pdfedit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pdfedit", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfedit [flags] <pdf>\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.annotations, "annotations", "", "JSON file with annotations to apply")
	fs.StringVar(&opts.session, "session", "", "JSON file with editor events to replay")
	fs.StringVar(&opts.outDir, "out", ".", "Directory the edited PDF is written to")
	fs.BoolVar(&opts.runs, "runs", false, "Print the detected text runs of every page")
	fs.BoolVar(&opts.ocr, "ocr", false, "Recognize text on pages without extractable text")
	lang := fs.String("lang", "eng", "Comma separated OCR languages")
	fs.Float64Var(&opts.scale, "scale", 0, "Preview resolution in pixels per point")
	fs.BoolVar(&opts.strict, "strict-images", false, "Embed images only with their declared type")
	fs.BoolVar(&opts.clampDrag, "clamp-drag", false, "Keep dragged annotations inside the page")
	fs.BoolVar(&opts.compress, "compress", true, "Flate-compress written content streams")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = fs.Arg(0)
	for _, l := range strings.Split(*lang, ",") {
		if l = strings.TrimSpace(l); l != "" {
			opts.languages = append(opts.languages, l)
		}
	}
	return opts, nil
}

func newLogger(w io.Writer, verbose bool) observability.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return observability.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	log := newLogger(stderr, opts.verbose)
	data, err := os.ReadFile(opts.pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}

	rcfg := render.Config{Scale: opts.scale, Logger: log}
	if opts.ocr {
		rcfg.OCR = tesseract.New()
		rcfg.OCRLanguages = opts.languages
	}
	bus := editor.NewBus()
	play := &player{bus: bus}
	if opts.session != "" {
		play.dir = filepath.Dir(opts.session)
	}
	ctrl := editor.New(editor.Config{
		Renderer:     render.New(rcfg),
		ClampDrag:    opts.clampDrag,
		OnImageError: play.imageFailed,
		Logger:       log,
	})
	play.ctrl = ctrl
	ctrl.Mount(bus)
	defer ctrl.Unmount()

	if err := ctrl.Open(ctx, filepath.Base(opts.pdfPath), data); err != nil {
		return err
	}
	if opts.runs {
		if err := emitSection(stdout, "runs", pageRuns(ctrl)); err != nil {
			return err
		}
	}
	if opts.annotations != "" {
		anns, err := readAnnotations(opts.annotations)
		if err != nil {
			return err
		}
		if err := ctrl.Import(anns); err != nil {
			return fmt.Errorf("import annotations: %w", err)
		}
	}
	if opts.session != "" {
		events, err := readSession(opts.session)
		if err != nil {
			return err
		}
		if err := play.replay(events); err != nil {
			return err
		}
	}
	if err := emitSection(stdout, "annotations", ctrl.Annotations()); err != nil {
		return err
	}

	proj := export.New(builder.New(builder.Config{
		Writer: writer.Config{Compress: opts.compress},
		Logger: log,
	}), export.Options{StrictImageTypes: opts.strict, Logger: log})
	name, out, err := ctrl.Export(ctx, proj)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(opts.outDir, name)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return emitSection(stdout, "output", outputSummary{Path: path, Bytes: len(out), Annotations: len(ctrl.Annotations())})
}

type runSummary struct {
	Page     int     `json:"page"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize"`
}

type outputSummary struct {
	Path        string `json:"path"`
	Bytes       int    `json:"bytes"`
	Annotations int    `json:"annotations"`
}

func pageRuns(ctrl *editor.Controller) []runSummary {
	var out []runSummary
	for _, p := range ctrl.Pages().Pages() {
		for _, r := range p.TextRuns {
			out = append(out, runSummary{Page: p.Number, Text: r.Text, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, FontSize: r.FontSize})
		}
	}
	return out
}

func readAnnotations(path string) ([]annotation.Annotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	var anns []annotation.Annotation
	if err := json.Unmarshal(data, &anns); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	return anns, nil
}

func emitSection(w io.Writer, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "== %s ==\n%s\n\n", name, data)
	return err
}
