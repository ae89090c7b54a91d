package backup

import (
	"path"

	"github.com/arkhive/arkhive/internal/config"
)

// A Descriptor names one dated backup on the remote host. Every remote
// path the backup, restore and verify flows touch derives from it, so
// the naming rules live in exactly one place.
type Descriptor struct {
	Date        string
	User        string
	Home        string
	Compression string
	Encrypted   bool
}

// ArchiveName returns the archive file name without any directory part.
// The name encodes both the compression kind and whether the stream was
// encrypted, which is what lets a restore pick the right unpack pipeline
// from the listing alone.
func (d Descriptor) ArchiveName() string {
	name := d.Date + "-" + d.User + "-arkhive"
	if d.Encrypted {
		name += ".enc"
	}
	switch d.Compression {
	case config.CompressionXz:
		return name + ".arbk.xz"
	case config.CompressionNone:
		return name + ".tar"
	default:
		return name + ".arbk"
	}
}

// RemoteDir is the dated directory under the backup home.
func (d Descriptor) RemoteDir() string {
	return path.Join(d.Home, d.Date)
}

// RemotePath is the full remote path of the archive.
func (d Descriptor) RemotePath() string {
	return path.Join(d.RemoteDir(), d.ArchiveName())
}

// TarFlag returns the tar compression letter matching the archive
// format: "z" for gzip, "J" for xz and the empty string for a plain tar.
func (d Descriptor) TarFlag() string {
	switch d.Compression {
	case config.CompressionGzip:
		return "z"
	case config.CompressionXz:
		return "J"
	default:
		return ""
	}
}

// RestoreCandidates enumerates the archives a restore probes for a given
// date, in the fixed order gzip, xz, uncompressed. The order matters:
// whichever candidate exists first wins, regardless of the compression
// the local configuration happens to name today.
func RestoreCandidates(home, date, user string, encrypted bool) []Descriptor {
	kinds := []string{config.CompressionGzip, config.CompressionXz, config.CompressionNone}
	out := make([]Descriptor, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, Descriptor{
			Date:        date,
			User:        user,
			Home:        home,
			Compression: kind,
			Encrypted:   encrypted,
		})
	}
	return out
}
