package backup

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DateLayout is the DD-MM-YY date token embedded in artifact and dump
	// filenames. It is the sole retention key: the filesystem modification
	// time of an artifact is never consulted.
	DateLayout = "02-01-06"

	// ArchiveSuffix is the extension carried by every encrypted artifact
	ArchiveSuffix = ".tar.gz.gpg"

	// tarGzSuffix is the extension of the intermediate compressed container
	tarGzSuffix = ".tar.gz"
)

// dumpSuffixes are the file suffixes a dataset dump may carry inside an
// archive. The restore-file locator matches on these.
var dumpSuffixes = []string{".dump", ".db"}

// ArchiveName is the structured form of an encrypted artifact filename.
// Both the retention sweeper and the restore-file locator parse names
// through this one contract.
type ArchiveName struct {
	Prefix string
	Date   time.Time
}

// String renders the archive filename for the name's prefix and date
func (a ArchiveName) String() string {
	return BuildArchiveName(a.Prefix, a.Date)
}

// BuildArchiveName returns the artifact filename for a dataset prefix and
// creation date: <prefix>-<DD-MM-YY>.tar.gz.gpg. An empty prefix yields the
// legacy whole-run form <DD-MM-YY>.tar.gz.gpg.
func BuildArchiveName(prefix string, date time.Time) string {
	dateTag := date.Format(DateLayout)
	if prefix == "" {
		return dateTag + ArchiveSuffix
	}
	return fmt.Sprintf("%s-%s%s", prefix, dateTag, ArchiveSuffix)
}

// ParseArchiveName parses an artifact filename into its prefix and date.
// The date token is the tail of the substring before the first dot; names
// whose token does not parse as DD-MM-YY yield a typed format error.
func ParseArchiveName(filename string) (ArchiveName, error) {
	base := filepath.Base(filename)

	stem, _, found := strings.Cut(base, ".")
	if !found || stem == "" {
		return ArchiveName{}, NewFormatError(fmt.Sprintf("archive name %q has no date token", base), nil)
	}

	// Legacy whole-run archives carry a bare date stem; per-dataset
	// archives carry <prefix>-<date>.
	if date, err := parseDateToken(stem); err == nil {
		return ArchiveName{Date: date}, nil
	}

	const tokenLen = len(DateLayout)
	if len(stem) <= tokenLen || stem[len(stem)-tokenLen-1] != '-' {
		return ArchiveName{}, NewFormatError(fmt.Sprintf("archive name %q has no parseable date token", base), nil)
	}

	date, err := parseDateToken(stem[len(stem)-tokenLen:])
	if err != nil {
		return ArchiveName{}, NewFormatError(fmt.Sprintf("archive name %q has no parseable date token", base), err)
	}

	return ArchiveName{
		Prefix: stem[:len(stem)-tokenLen-1],
		Date:   date,
	}, nil
}

// parseDateToken parses a zero-padded DD-MM-YY token
func parseDateToken(token string) (time.Time, error) {
	if len(token) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("date token %q is not %s", token, DateLayout)
	}
	return time.Parse(DateLayout, token)
}

// BuildDumpName returns the dump filename for a dataset and date tag,
// e.g. postgres-backup-21-01-26.dump or sqlite-backup-21-01-26.db
func BuildDumpName(dataset, dateTag, suffix string) string {
	return fmt.Sprintf("%s-backup-%s%s", dataset, dateTag, suffix)
}

// IsDumpFile reports whether a filename carries a recognized dump suffix
func IsDumpFile(filename string) bool {
	for _, suffix := range dumpSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}
