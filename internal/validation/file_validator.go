package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "datapulse/internal/errors"
)

// Kind identifies a supported spreadsheet container
type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindXLS  Kind = "xls"
)

// container MIME types every accepted kind must descend from
var containers = map[Kind]string{
	KindXLSX: "application/zip",
	KindXLS:  "application/x-ole-storage",
}

// FileValidator decides whether files are spreadsheets DataPulse can read
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// DetectSpreadsheet checks the file name and sniffs data. The extension
// picks the expected kind and the content must match its container.
func (v *FileValidator) DetectSpreadsheet(name string, data []byte) (Kind, error) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("rejecting temporary Excel file", slog.String("file", name))
		return "", apperrors.NewFileFormatError(name, "temporary Excel lock file", nil)
	}

	var kind Kind
	switch ext := strings.ToLower(filepath.Ext(base)); ext {
	case ".xlsx":
		kind = KindXLSX
	case ".xls":
		kind = KindXLS
	default:
		v.logger.Warn("unsupported file extension",
			slog.String("file", name),
			slog.String("extension", ext))
		return "", apperrors.NewFileFormatError(name, fmt.Sprintf("unsupported extension %q, want .xls or .xlsx", ext), nil)
	}

	if len(data) == 0 {
		return "", apperrors.NewFileFormatError(name, "file is empty", nil)
	}

	detected := mimetype.Detect(data)
	if !descendsFrom(detected, containers[kind]) {
		v.logger.Warn("content does not match extension",
			slog.String("file", name),
			slog.String("extension", string(kind)),
			slog.String("detected", detected.String()))
		return "", apperrors.NewFileFormatError(name,
			fmt.Sprintf("content is %s, not a .%s workbook", detected.String(), kind), nil)
	}

	v.logger.Debug("spreadsheet detected",
		slog.String("file", name),
		slog.String("kind", string(kind)),
		slog.String("mime", detected.String()))
	return kind, nil
}

func descendsFrom(m *mimetype.MIME, container string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(container) {
			return true
		}
	}
	return false
}

// ValidateFile checks if a specific file exists and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("file does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	return nil
}

// ValidateOutputDirectory ensures the directory of an output file exists
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}
