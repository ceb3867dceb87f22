package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
)

// compressedSuffix selects xz compression for snapshot files.
const compressedSuffix = ".xz"

// ErrEmptySnapshot is returned when a snapshot holds no entities.
var ErrEmptySnapshot = errors.New("snapshot has no sections")

// SnapshotOptions controls how a dataset is written.
type SnapshotOptions struct {
	// OmitIndex writes an empty index; readers rebuild it on load.
	OmitIndex bool

	// Indent pretty-prints the JSON.
	Indent bool

	// Compress wraps the JSON in an xz stream.
	Compress bool
}

// Encode writes the dataset as a JSON snapshot.
func Encode(w io.Writer, dataset *Dataset, opts SnapshotOptions) error {
	if dataset == nil {
		return fmt.Errorf("dataset is nil")
	}

	out := *dataset
	if opts.OmitIndex {
		out.Index = map[string]*Entity{}
	} else if len(out.Index) == 0 {
		out.Index = BuildIndex(out.Sections)
	}

	if opts.Compress {
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("creating xz writer: %w", err)
		}
		if err := encodeJSON(xzWriter, &out, opts.Indent); err != nil {
			xzWriter.Close()
			return err
		}
		if err := xzWriter.Close(); err != nil {
			return fmt.Errorf("closing xz writer: %w", err)
		}
		return nil
	}

	return encodeJSON(w, &out, opts.Indent)
}

func encodeJSON(w io.Writer, dataset *Dataset, indent bool) error {
	encoder := json.NewEncoder(w)
	if indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(dataset); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// Decode reads a JSON snapshot, transparently handling xz compression, and
// ensures the index is usable.
func Decode(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	if len(data) >= xz.HeaderLen && xz.ValidHeader(data[:xz.HeaderLen]) {
		xzReader, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		data, err = io.ReadAll(xzReader)
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot: %w", err)
		}
	}

	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if len(dataset.Sections) == 0 {
		return nil, ErrEmptySnapshot
	}

	if dataset.EnsureIndex() {
		log.Debug().
			Str("version", dataset.Version).
			Int("entities", len(dataset.Sections)).
			Msg("rebuilt index for snapshot")
	}
	return &dataset, nil
}

// SaveSnapshot writes the dataset to path. A ".xz" suffix forces compression.
func SaveSnapshot(path string, dataset *Dataset, opts SnapshotOptions) error {
	if strings.HasSuffix(path, compressedSuffix) {
		opts.Compress = true
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, dataset, opts); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a dataset from path.
func LoadSnapshot(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	dataset, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return dataset, nil
}
