// Package archive packs the artifact tree into a single compressed file.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Pack writes a deflate-compressed zip of dir to outPath. Entry names are
// relative to dir's parent, so unpacking recreates the directory itself.
func Pack(dir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", outPath, err)
	}
	writer := zip.NewWriter(out)

	parent := filepath.Dir(filepath.Clean(dir))
	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		return addFile(writer, path, filepath.ToSlash(rel))
	})

	if walkErr != nil {
		_ = writer.Close()
		_ = out.Close()
		return fmt.Errorf("walk artifact dir %s: %w", dir, walkErr)
	}
	if err := writer.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func addFile(writer *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	entry, err := writer.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}
