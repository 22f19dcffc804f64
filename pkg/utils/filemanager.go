// =============================================================================
// PRF Budget Import - File Manager Utility
// =============================================================================
//
// This module provides the file handling used by the CLI:
//   - Workbook discovery in an input directory
//   - Report file naming and writing
//   - Input archival after a successful import
//
// ARCHIVAL STRATEGY:
//   - An input workbook is moved to the archive directory only when its
//     batch reached the reported state
//   - Rejected workbooks stay where they are
//   - Archives can be split into YYYY/MM/DD subdirectories
//
// =============================================================================

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
)

// WorkbookExtensions are the file extensions picked up by discovery.
var WorkbookExtensions = []string{".xlsx", ".xlsm", ".xls", ".csv"}

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles report and archive files.
type FileManager struct {
	// ReportDir is where report files are written.
	ReportDir string

	// ArchiveDir receives imported input workbooks.
	ArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: archive/2024/01/15/prf.xlsx
	UseTimestampSubdirs bool

	// now is replaced in tests.
	now func() time.Time
}

// NewFileManager creates a FileManager from the output configuration.
func NewFileManager(cfg config.OutputConfig) *FileManager {
	return &FileManager{
		ReportDir:           cfg.ReportDir,
		ArchiveDir:          cfg.ArchiveDir,
		UseTimestampSubdirs: cfg.UseTimestampSubdirs,
		now:                 time.Now,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the report and archive directories if they
// don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.ReportDir, fm.ArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the workbooks directly inside dir, sorted by
// name. Lock files left by spreadsheet editors ("~$...") are ignored.
//
// PARAMETERS:
//   - dir: The directory to scan. Subdirectories are not entered.
//
// RETURNS:
//   - The workbook paths.
//   - An error if the directory cannot be read.
func DiscoverInputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if IsWorkbookFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// IsWorkbookFile reports whether name has a workbook extension.
func IsWorkbookFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range WorkbookExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	archivePath := fm.archivePath(filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves need a copy.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}
	return archivePath, nil
}

func (fm *FileManager) archivePath(filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}
	return filepath.Join(fm.ArchiveDir, fileName)
}

// =============================================================================
// REPORT FILES
// =============================================================================

// WriteReport creates a report file in the report directory and lets write
// fill it. A partially written file is removed.
//
// RETURNS:
//   - The path of the written file.
func (fm *FileManager) WriteReport(fileName string, write func(io.Writer) error) (string, error) {
	path := filepath.Join(fm.ReportDir, fileName)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}

	if err := write(file); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close report: %w", err)
	}
	return path, nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates a unique output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//     {original}  - Original file name (without extension)
//     {batch}     - Batch ID
//   - params: A map of placeholder values.
//   - ext: The extension to ensure, e.g. ".json".
//
// EXAMPLE:
//
//	format: "{original}_{timestamp}_{uuid}"
//	params: {"original": "prf_march"}
//	output: "prf_march_20240115_143022_a1b2c3d4-e5f6-7890-abcd-ef1234567890.json"
func GenerateOutputFileName(format string, params map[string]string, ext string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(ext)) {
		result += ext
	}
	return result
}

// OriginalName returns the file name of path without its extension.
func OriginalName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}
