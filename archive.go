package wgapple

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ArchiveFormat selects the compression of the release archive.
type ArchiveFormat string

const (
	ArchiveNone ArchiveFormat = "none"
	ArchiveZstd ArchiveFormat = "zst"
	ArchiveXZ   ArchiveFormat = "xz"
)

// ParseArchiveFormat accepts "", "none", "zst", "zstd" and "xz".
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	switch s {
	case "", "none":
		return ArchiveNone, nil
	case "zst", "zstd":
		return ArchiveZstd, nil
	case "xz":
		return ArchiveXZ, nil
	default:
		return "", fmt.Errorf("unknown archive format %q (want none, zst or xz)", s)
	}
}

// WriteReleaseArchive packs the bundle directory into
// <bundle>.tar.<format> next to it and writes a <archive>.sha256 file.
//
// Returns the archive path and its hex SHA-256.
func WriteReleaseArchive(bundlePath string, format ArchiveFormat) (string, string, error) {
	if format == ArchiveNone {
		return "", "", nil
	}
	archivePath := bundlePath + ".tar." + string(format)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", "", err
	}

	hash := sha256.New()
	sink := io.MultiWriter(f, hash)

	var compressor io.WriteCloser
	switch format {
	case ArchiveZstd:
		compressor, err = zstd.NewWriter(sink)
	case ArchiveXZ:
		compressor, err = xz.NewWriter(sink)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		f.Close()
		os.Remove(archivePath)
		return "", "", err
	}

	if err := tarDirectory(compressor, bundlePath); err != nil {
		compressor.Close()
		f.Close()
		os.Remove(archivePath)
		return "", "", err
	}
	if err := compressor.Close(); err != nil {
		f.Close()
		os.Remove(archivePath)
		return "", "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(archivePath)
		return "", "", err
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	if err := os.WriteFile(archivePath+".sha256", []byte(line), 0o644); err != nil {
		return "", "", err
	}

	logf(phaseArchive, "wrote %s (sha256 %s)", archivePath, sum)
	return archivePath, sum, nil
}

// tarDirectory writes root into w, with entry names rooted at root's
// basename so the archive unpacks to <Name>.xcframework/.
func tarDirectory(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	base := filepath.Dir(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}
