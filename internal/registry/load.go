package registry

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestName is the manifest file looked up inside packs.
const manifestName = "pack.yaml"

// manifest is the pack.yaml shape; only the messaging section matters
// here, other pack content is ignored.
type manifest struct {
	ID                string              `yaml:"id"`
	Version           string              `yaml:"version"`
	MessagingAdapters []AdapterDescriptor `yaml:"messaging_adapters"`
}

// LoadDir walks root for .gtpack archives and bare pack.yaml
// manifests and registers every declared adapter. Files are visited
// in lexical walk order, which fixes the registry's insertion order.
func LoadDir(root string) (*Registry, error) {
	r := New()
	log := slog.Default().With("component", "registry")

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, ".gtpack"):
			m, err := readArchiveManifest(path)
			if err != nil {
				return fmt.Errorf("pack %s: %w", path, err)
			}
			return registerManifest(r, m, path)
		case filepath.Base(path) == manifestName:
			m, err := readManifestFile(path)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", path, err)
			}
			return registerManifest(r, m, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("loaded adapter registry", "root", root, "adapters", len(r.ordered))
	return r, nil
}

func registerManifest(r *Registry, m *manifest, source string) error {
	for _, d := range m.MessagingAdapters {
		d.PackID = m.ID
		d.PackVersion = m.Version
		d.Source = source
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func readManifestFile(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseManifest(data)
}

// readArchiveManifest extracts pack.yaml from a .gtpack zip archive.
func readArchiveManifest(path string) (*manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if filepath.Base(f.Name) != manifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return parseManifest(data)
	}
	return nil, fmt.Errorf("no %s in archive", manifestName)
}

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
