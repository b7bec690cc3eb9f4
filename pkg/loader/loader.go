// Package loader reads parameter and defaults files and writes output
// parameter files.
//
// SECURITY: All file reads enforce size limits to prevent DoS attacks
// via large files. Input validation is performed at the boundary.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flavioaiello/azure-building-blocks/pkg/params"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// File size limits.
const (
	// MaxParameterFileSizeBytes is the maximum size of a parameter file (10MB).
	MaxParameterFileSizeBytes = 10 * 1024 * 1024
	// MaxDefaultsFileSizeBytes is the maximum size of a defaults file (1MB).
	MaxDefaultsFileSizeBytes = 1 * 1024 * 1024
)

// Errors.
var (
	ErrFileNotFound     = errors.New("file not found")
	ErrFileTooLarge     = errors.New("file exceeds maximum size")
	ErrInvalidDocument  = errors.New("invalid JSON or YAML syntax")
	ErrNotAnObject      = errors.New("document must be an object")
	ErrInvalidOutputDir = errors.New("output path is not a directory")
)

// Loader reads parameter files and the optional per-type defaults files.
type Loader struct {
	defaultsDir string
	logger      *zap.Logger
}

// New creates a Loader. An empty defaultsDir disables defaults files.
func New(defaultsDir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{defaultsDir: defaultsDir, logger: logger}
}

// LoadParameters reads and decodes an input parameter file.
func (l *Loader) LoadParameters(path string) (map[string]interface{}, error) {
	doc, err := readDocument(path, MaxParameterFileSizeBytes)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Loaded parameter file", zap.String("path", path))
	return doc, nil
}

// LoadDefaults reads the defaults file of a building block type. A missing
// file or an unset defaults directory yields nil, nil.
func (l *Loader) LoadDefaults(filename string) (map[string]interface{}, error) {
	if l.defaultsDir == "" || filename == "" {
		return nil, nil
	}
	// SECURITY: Defaults filenames come from the registry; never leave the directory.
	if filepath.Base(filename) != filename {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}
	path := filepath.Join(l.defaultsDir, filename)
	doc, err := readDocument(path, MaxDefaultsFileSizeBytes)
	if errors.Is(err, ErrFileNotFound) {
		l.logger.Debug("No defaults file", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.logger.Info("Loaded defaults file", zap.String("path", path))
	return doc, nil
}

// readDocument reads at most limit bytes of a JSON or YAML object.
func readDocument(path string, limit int64) (map[string]interface{}, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// SECURITY: Check file size before reading to prevent DoS.
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s (%d bytes, max %d)", ErrFileTooLarge, path, info.Size(), limit)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	return Decode(data, path)
}

// Decode parses a JSON or YAML object. YAML is a superset of JSON.
func Decode(data []byte, source string) (map[string]interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, source, err)
	}
	doc, ok := values.Normalize(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, source)
	}
	return doc, nil
}

// OutputPath names the output parameter file of the index-th (1-based)
// building block of the input file at input, e.g. "dir/vnet-output-01.json".
func OutputPath(dir, input string, index int) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, fmt.Sprintf("%s-output-%02d.json", base, index))
}

// WriteParameters writes f as indented JSON, creating dir when needed.
func WriteParameters(path string, f *params.File) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInvalidOutputDir, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameter file: %w", err)
	}
	// Output files may carry secrets.
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}
	return nil
}
