package downloader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"packt-downloader/model"
	"packt-downloader/transfer"
	"packt-downloader/utils"
)

// ItemDir is the directory the files of an item go to.
func ItemDir(outDir, name string, separate bool) string {
	if separate {
		return filepath.Join(outDir, name)
	}
	return outDir
}

// FileStem is the file name stem of an item. Titles that clean down to
// nothing fall back to the product id.
func FileStem(item model.CatalogItem) string {
	if name := utils.CleanName(item.ProductName); name != "" {
		return name
	}
	return utils.CleanName(item.ProductID)
}

// PlanTarget computes where a format of an item is downloaded to and what
// its completed name is. Archive formats are fetched as "<name>.<fmt>" and
// end up as "<name> [<fmt>].zip".
func PlanTarget(item model.CatalogItem, name, dir, format string) model.DownloadTarget {
	t := model.DownloadTarget{
		Item:   item,
		Format: format,
		Path:   filepath.Join(dir, name+"."+format),
	}
	t.Target = t.Path
	if model.IsArchiveFormat(format) {
		t.Target = archiveName(dir, name, format)
	}
	return t
}

func archiveName(dir, name, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%s [%s].zip", name, format))
}

// looseFile reports whether file belongs to the item called name when it
// sits directly in the output directory: "<name>.<ext>" or
// "<name> [<fmt>].zip". Unfinished transfers are left alone.
func looseFile(file, name string) bool {
	if name == "" || strings.HasSuffix(file, transfer.PartSuffix) {
		return false
	}
	if rest, ok := strings.CutPrefix(file, name+"."); ok {
		return rest != "" && !strings.Contains(rest, ".")
	}
	if rest, ok := strings.CutPrefix(file, name+" ["); ok {
		tag, ok := strings.CutSuffix(rest, "].zip")
		return ok && tag != "" && !strings.ContainsAny(tag, "[]")
	}
	return false
}

// MigrateLoose moves files of the item called name from outDir into dir.
// Name collisions get a numeric suffix; nothing is overwritten.
func MigrateLoose(outDir, name, dir string, logger *slog.Logger) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", outDir, err)
	}

	var moved []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !looseFile(entry.Name(), name) {
			continue
		}
		if err := utils.EnsureDir(dir); err != nil {
			return moved, err
		}
		dst, err := utils.MoveNoClobber(filepath.Join(outDir, entry.Name()), filepath.Join(dir, entry.Name()))
		if err != nil {
			return moved, err
		}
		logger.Info("moved into book folder", "file", entry.Name(), "to", dst)
		moved = append(moved, dst)
	}
	return moved, nil
}

// TidyReport lists what Tidy changed.
type TidyReport struct {
	Renamed []string
	Moved   []string
}

// Tidy repairs an output directory written by older runs: stray
// "<name>.code" and "<name>.video" downloads get their archive name, and in
// separate mode loose files are moved into per-item folders.
func Tidy(outDir string, separate bool, logger *slog.Logger) (*TidyReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	report := &TidyReport{}

	dirs := []string{outDir}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", outDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(outDir, entry.Name()))
		}
	}

	for _, dir := range dirs {
		renamed, err := renameArchives(dir, logger)
		report.Renamed = append(report.Renamed, renamed...)
		if err != nil {
			return report, err
		}
	}

	if !separate {
		return report, nil
	}

	entries, err = os.ReadDir(outDir)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", outDir, err)
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name, ok := itemName(entry.Name())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		moved, err := MigrateLoose(outDir, name, filepath.Join(outDir, name), logger)
		report.Moved = append(report.Moved, moved...)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func renameArchives(dir string, logger *slog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var renamed []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		format := strings.TrimPrefix(ext, ".")
		if !model.IsArchiveFormat(format) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		dst, err := utils.MoveNoClobber(filepath.Join(dir, entry.Name()), archiveName(dir, name, format))
		if err != nil {
			return renamed, err
		}
		logger.Info("renamed archive", "file", entry.Name(), "to", filepath.Base(dst))
		renamed = append(renamed, dst)
	}
	return renamed, nil
}

// itemName recovers the item name from a file written by the downloader.
func itemName(file string) (string, bool) {
	if strings.HasSuffix(file, transfer.PartSuffix) {
		return "", false
	}
	if strings.HasSuffix(file, "].zip") {
		if i := strings.LastIndex(file, " ["); i > 0 {
			return file[:i], true
		}
	}
	ext := filepath.Ext(file)
	if ext == "" || ext == file {
		return "", false
	}
	return strings.TrimSuffix(file, ext), true
}
