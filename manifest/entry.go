// Package manifest implements the manifest format described in section 6
// of the design specification: a pipe-delimited sidecar file enumerating
// every archive member and the exact byte range it occupies in its TAR.
package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeaderRow is the bit-exact header line section 6 mandates.
const HeaderRow = "tarfile_name|original_file_name|current_date|filesize|start_bytes|stop_bytes|md5"

// Entry is one manifest row, per section 3's ManifestEntry definition.
type Entry struct {
	TarLocation   string // tarfile_name
	MemberSource  string // original_file_name
	Date          string // current_date, YYYY-MM-DD
	SizeBytes     int64
	StartOffset   int64
	EndOffset     int64
	MD5Hex        string
}

// NewEntry builds an Entry stamped with the given time's UTC date.
func NewEntry(tarLocation, memberSource string, size, start, end int64, md5Hex string, at time.Time) Entry {
	return Entry{
		TarLocation:  tarLocation,
		MemberSource: memberSource,
		Date:         at.UTC().Format("2006-01-02"),
		SizeBytes:    size,
		StartOffset:  start,
		EndOffset:    end,
		MD5Hex:       md5Hex,
	}
}

// Validate rejects any field that would corrupt the pipe-delimited, unquoted
// format — section 6 forbids embedded "|" in names.
func (e Entry) Validate() error {
	if strings.ContainsRune(e.TarLocation, '|') {
		return fmt.Errorf("tar_location contains '|': %q", e.TarLocation)
	}
	if strings.ContainsRune(e.MemberSource, '|') {
		return fmt.Errorf("member_source contains '|': %q", e.MemberSource)
	}
	if e.StartOffset > e.EndOffset {
		return fmt.Errorf("start_offset %d > end_offset %d", e.StartOffset, e.EndOffset)
	}
	return nil
}

// Row renders the entry as one pipe-delimited line, with no trailing
// newline and no quoting, per section 6's bit-exact format.
func (e Entry) Row() string {
	var b strings.Builder
	b.WriteString(e.TarLocation)
	b.WriteByte('|')
	b.WriteString(e.MemberSource)
	b.WriteByte('|')
	b.WriteString(e.Date)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.SizeBytes, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.StartOffset, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.EndOffset, 10))
	b.WriteByte('|')
	b.WriteString(e.MD5Hex)
	return b.String()
}

// ParseRow parses one manifest data line (not the header) back into an
// Entry. It is the inverse of Row, used by the restore command to load
// manifest rows produced by an earlier run.
func ParseRow(line string) (Entry, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 7 {
		return Entry{}, fmt.Errorf("manifest row has %d fields, want 7: %q", len(fields), line)
	}

	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse filesize: %w", err)
	}
	start, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse start_bytes: %w", err)
	}
	stop, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse stop_bytes: %w", err)
	}

	return Entry{
		TarLocation:  fields[0],
		MemberSource: fields[1],
		Date:         fields[2],
		SizeBytes:    size,
		StartOffset:  start,
		EndOffset:    stop,
		MD5Hex:       fields[6],
	}, nil
}
