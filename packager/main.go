// Command packager turns the plain JSON exported by the offline fitting job
// into a checksummed, zstd-compressed artifact directory.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/DeafMist/news-credibility/internal/artifact"
	"github.com/DeafMist/news-credibility/internal/logger"
)

func main() {
	log := logger.New("packager")
	if err := run(os.Args[1:], os.Stderr, log); err != nil {
		log.Error("package artifacts", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer, log *slog.Logger) error {
	fs := flag.NewFlagSet("packager", flag.ContinueOnError)
	fs.SetOutput(stderr)
	vecPath := fs.String("vectorizer", "", "Path to the exported vectorizer JSON")
	modelPath := fs.String("model", "", "Path to the exported model JSON")
	outDir := fs.String("out", "artifacts", "Output directory")
	name := fs.String("name", "welfake-tfidf-logreg", "Artifact name")
	version := fs.String("version", "", "Artifact version, e.g. 2024-05-01")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vecPath == "" || *modelPath == "" || *version == "" {
		fs.Usage()
		return errors.New("-vectorizer, -model and -version are required")
	}

	var vf artifact.VectorizerFile
	if err := readStrict(*vecPath, &vf); err != nil {
		return err
	}
	var mf artifact.ModelFile
	if err := readStrict(*modelPath, &mf); err != nil {
		return err
	}

	b, err := artifact.Build(vf, mf)
	if err != nil {
		return err
	}

	manifest, err := artifact.Save(*outDir, *name, *version, vf, mf)
	if err != nil {
		return err
	}

	log.Info("artifacts written",
		slog.String("manifest", manifest),
		slog.Int("features", b.Vectorizer.Dim()),
		slog.Int("stop_words", len(vf.StopWords)),
		slog.String("positive_label", string(b.Model.Positive())),
	)
	return nil
}

func readStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
