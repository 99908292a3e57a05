package decode

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// TimestampLayout is the suffix layout for per-instant raster files (%Y%m%d_%H%M%S).
const TimestampLayout = "20060102_150405"

// WriteFile persists body verbatim at path. Parent directories are created and
// the file appears atomically (temp file plus rename) or not at all.
func WriteFile(path string, body []byte) error {
	if path == "" {
		return &model.FileWriteError{Path: path, Err: model.Invalidf("empty file path")}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &model.FileWriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return &model.FileWriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &model.FileWriteError{Path: path, Err: err}
	}

	if _, err := tmp.Write(body); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &model.FileWriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return &model.FileWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &model.FileWriteError{Path: path, Err: err}
	}
	return nil
}

// TimestampedPath appends "_{t:%Y%m%d_%H%M%S}" and ext to prefix.
func TimestampedPath(prefix string, t time.Time, ext string) string {
	return prefix + "_" + t.UTC().Format(TimestampLayout) + ext
}
