package manifest

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/security"
	"github.com/ulikunitz/xz"
)

// loadArchArchive reads .PKGINFO and .INSTALL out of a package tarball without
// extracting the payload
func (l *Loader) loadArchArchive(archivePath string) (*core.PackageDescriptor, error) {
	file, err := l.Fs.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	r, closeFn, err := decompressor(archivePath, file)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	pkginfo, install, err := readMetadata(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}
	if pkginfo == "" {
		return nil, fmt.Errorf("%s: archive has no %s", archivePath, ArchPkgInfo)
	}

	return buildArch(pkginfo, install)
}

func decompressor(name string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".xz"):
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzr, func() {}, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	default:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzr, func() { gzr.Close() }, nil
	}
}

// readMetadata scans the tar stream for the two metadata members. Arch places
// them first, so the scan stops as soon as both are seen.
func readMetadata(r io.Reader) (pkginfo, install string, err error) {
	tr := tar.NewReader(r)

	for pkginfo == "" || install == "" {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("tar read error: %w", err)
		}

		if err := security.ValidateArchiveEntry(header.Name); err != nil {
			return "", "", fmt.Errorf("invalid path in archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		switch path.Clean(header.Name) {
		case ArchPkgInfo:
			pkginfo, err = readMember(tr, header)
		case ArchInstall:
			install, err = readMember(tr, header)
		default:
			continue
		}
		if err != nil {
			return "", "", err
		}
	}

	return pkginfo, install, nil
}

func readMember(r io.Reader, header *tar.Header) (string, error) {
	if header.Size > maxScriptBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", header.Name, maxScriptBytes)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxScriptBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", header.Name, err)
	}
	return string(data), nil
}
