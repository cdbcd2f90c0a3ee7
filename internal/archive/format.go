package archive

import "strings"

// Format identifies the container layout of an archive.
type Format string

const (
	FormatZip Format = "zip"
	FormatTar Format = "tar"
	FormatJar Format = "jar"
)

// Compression identifies the stream compression wrapped around a tar.
type Compression string

const (
	CompressionNone     Compression = ""
	CompressionGzip     Compression = "gzip"
	CompressionBzip2    Compression = "bzip2"
	CompressionXz       Compression = "xz"
	CompressionCompress Compression = "compress"
	CompressionZstd     Compression = "zstd"
)

// FormatOf determines the archive format from a filename. Anything that is
// not a zip or jar container is treated as a tar.
func FormatOf(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case hasAnySuffix(lower, ".zip", ".whl", ".apk", ".nupkg", ".egg"):
		return FormatZip
	case hasAnySuffix(lower, ".jar", ".war", ".ear"):
		return FormatJar
	default:
		return FormatTar
	}
}

// CompressionOf determines the compression of a tar from its filename.
// ".Z" is matched case sensitively since ".z" is a different format.
func CompressionOf(filename string) Compression {
	if strings.HasSuffix(filename, ".Z") {
		return CompressionCompress
	}

	lower := strings.ToLower(filename)
	switch {
	case hasAnySuffix(lower, ".gz", ".tgz"):
		return CompressionGzip
	case hasAnySuffix(lower, ".bz2", ".tbz2", ".tbz"):
		return CompressionBzip2
	case hasAnySuffix(lower, ".xz", ".txz"):
		return CompressionXz
	case hasAnySuffix(lower, ".zst", ".tzst"):
		return CompressionZstd
	case strings.HasSuffix(lower, ".taz"):
		return CompressionCompress
	default:
		return CompressionNone
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
