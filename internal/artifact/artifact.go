// Package artifact loads the fitted vectorizer and model that the inference
// pipeline serves. Both files are listed in a YAML manifest together with
// their SHA-256 checksums; files ending in .zst are zstd-compressed JSON.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/DeafMist/news-credibility/internal/classifier"
	"github.com/DeafMist/news-credibility/internal/processing"
	"github.com/DeafMist/news-credibility/internal/vectorizer"
)

// FormatVersion is the only payload layout this build understands.
const FormatVersion = 1

// ErrArtifactLoad wraps every failure to produce a Bundle.
var ErrArtifactLoad = errors.New("artifact load failed")

// Manifest binds a vectorizer and a model fitted together.
type Manifest struct {
	Name              string  `yaml:"name"`
	Version           string  `yaml:"version"`
	NormalizerVersion string  `yaml:"normalizer_version"`
	Vectorizer        FileRef `yaml:"vectorizer"`
	Model             FileRef `yaml:"model"`
}

// FileRef points at one artifact file. Relative paths resolve against the manifest directory.
type FileRef struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
}

// VectorizerFile is the persisted vocabulary, IDF table and normalization settings.
type VectorizerFile struct {
	FormatVersion     int            `json:"format_version"`
	NormalizerVersion string         `json:"normalizer_version"`
	MinTokenLength    int            `json:"min_token_length"`
	StopWords         []string       `json:"stop_words"`
	Vocabulary        map[string]int `json:"vocabulary"`
	IDF               []float64      `json:"idf"`
}

// ModelFile is the persisted logistic regression. PositiveLabel names the
// class whose probability the sigmoid output is.
type ModelFile struct {
	FormatVersion int       `json:"format_version"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
	PositiveLabel string    `json:"positive_label"`
}

// Bundle is everything the pipeline needs, validated as a unit.
type Bundle struct {
	Name       string
	Version    string
	Normalizer *processing.Normalizer
	Vectorizer *vectorizer.Vectorizer
	Model      *classifier.Model
}

// Load reads the manifest at path and both artifacts it references. When
// expectedDim is positive the feature space must have exactly that many
// dimensions. Nothing is returned unless every check passes.
func Load(path string, expectedDim int) (*Bundle, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)

	var vf VectorizerFile
	if err := readJSON(dir, m.Vectorizer, &vf); err != nil {
		return nil, fmt.Errorf("%w: vectorizer: %w", ErrArtifactLoad, err)
	}
	var mf ModelFile
	if err := readJSON(dir, m.Model, &mf); err != nil {
		return nil, fmt.Errorf("%w: model: %w", ErrArtifactLoad, err)
	}

	b, err := Build(vf, mf)
	if err != nil {
		return nil, err
	}
	if m.NormalizerVersion != "" && m.NormalizerVersion != vf.NormalizerVersion {
		return nil, fmt.Errorf("%w: manifest pins normalizer %q but vectorizer was fitted with %q",
			ErrArtifactLoad, m.NormalizerVersion, vf.NormalizerVersion)
	}
	if expectedDim > 0 && b.Vectorizer.Dim() != expectedDim {
		return nil, fmt.Errorf("%w: feature space has %d dimensions, want %d", ErrArtifactLoad, b.Vectorizer.Dim(), expectedDim)
	}
	b.Name = m.Name
	b.Version = m.Version
	return b, nil
}

// LoadManifest parses and checks a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrArtifactLoad, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", ErrArtifactLoad, err)
	}
	if m.Vectorizer.Path == "" || m.Model.Path == "" {
		return nil, fmt.Errorf("%w: manifest must reference a vectorizer and a model", ErrArtifactLoad)
	}
	if m.Vectorizer.SHA256 == "" || m.Model.SHA256 == "" {
		return nil, fmt.Errorf("%w: manifest must carry sha256 checksums", ErrArtifactLoad)
	}
	return &m, nil
}

// Build validates decoded artifacts and assembles a Bundle.
func Build(vf VectorizerFile, mf ModelFile) (*Bundle, error) {
	if vf.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: vectorizer format_version %d, want %d", ErrArtifactLoad, vf.FormatVersion, FormatVersion)
	}
	if mf.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: model format_version %d, want %d", ErrArtifactLoad, mf.FormatVersion, FormatVersion)
	}
	if vf.NormalizerVersion != processing.RulesVersion {
		return nil, fmt.Errorf("%w: vectorizer fitted with normalizer %q, this build implements %q",
			ErrArtifactLoad, vf.NormalizerVersion, processing.RulesVersion)
	}

	vec, err := vectorizer.New(vf.Vocabulary, vf.IDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}
	positive, err := classifier.ParseLabel(mf.PositiveLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: model positive_label: %w", ErrArtifactLoad, err)
	}
	model, err := classifier.NewModel(mf.Weights, mf.Bias, positive)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}
	if vec.Dim() != model.Dim() {
		return nil, fmt.Errorf("%w: vectorizer has %d features, model has %d: %w",
			ErrArtifactLoad, vec.Dim(), model.Dim(), classifier.ErrDimensionMismatch)
	}

	return &Bundle{
		Normalizer: processing.NewNormalizer(vf.StopWords, vf.MinTokenLength),
		Vectorizer: vec,
		Model:      model,
	}, nil
}

func readJSON(dir string, ref FileRef, out any) error {
	path := ref.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, ref.SHA256) {
		return fmt.Errorf("checksum mismatch for %s: got %s, manifest says %s", ref.Path, got, ref.SHA256)
	}

	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		if raw, err = dec.DecodeAll(raw, nil); err != nil {
			return fmt.Errorf("decompress %s: %w", ref.Path, err)
		}
	}

	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	if err := d.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	return nil
}
