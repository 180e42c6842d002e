package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file Save writes into its target directory.
const ManifestName = "manifest.yaml"

// Save writes vf and mf as zstd-compressed JSON next to a manifest carrying
// their checksums, and returns the manifest path. It is the packaging step
// for the offline fitting job.
func Save(dir, name, version string, vf VectorizerFile, mf ModelFile) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	vecRef, err := writeCompressed(dir, "vectorizer.json.zst", vf)
	if err != nil {
		return "", err
	}
	modelRef, err := writeCompressed(dir, "model.json.zst", mf)
	if err != nil {
		return "", err
	}

	m := Manifest{
		Name:              name,
		Version:           version,
		NormalizerVersion: vf.NormalizerVersion,
		Vectorizer:        vecRef,
		Model:             modelRef,
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

func writeCompressed(dir, file string, v any) (FileRef, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return FileRef{}, fmt.Errorf("marshal %s: %w", file, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return FileRef{}, fmt.Errorf("create zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	if err := enc.Close(); err != nil {
		return FileRef{}, fmt.Errorf("close zstd encoder: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, file), compressed, 0o644); err != nil {
		return FileRef{}, fmt.Errorf("write %s: %w", file, err)
	}
	sum := sha256.Sum256(compressed)
	return FileRef{Path: file, SHA256: hex.EncodeToString(sum[:])}, nil
}
