// Package source implements the Source Reader described in section 4.1 of
// the design specification: a lazy, finite stream of FileRef records drawn
// from exactly one of a filesystem walk, an object-store listing, or an
// explicit input list.
package source

// LocatorKind tags which half of the Locator union is populated, realizing
// the tagged variant called for in section 9 in place of the source's
// dynamically typed 2- or 3-tuples.
type LocatorKind int

const (
	// LocatorFilesystem marks a Locator whose Path field is the absolute
	// filesystem path of the file.
	LocatorFilesystem LocatorKind = iota
	// LocatorObjectKey marks a Locator whose Bucket/Key fields identify an
	// object-store object.
	LocatorObjectKey
)

// Locator identifies where a discovered file actually lives.
type Locator struct {
	Kind   LocatorKind
	Path   string // set when Kind == LocatorFilesystem
	Bucket string // set when Kind == LocatorObjectKey
	Key    string // set when Kind == LocatorObjectKey
}

// String returns a human-readable form of the locator, used in log lines and
// error messages. Manifest rows carry the FileRef's MemberName instead.
func (l Locator) String() string {
	if l.Kind == LocatorObjectKey {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// FileRef is one discovered input item, owned first by the Batcher and then
// by exactly one Archiver Worker, per section 3's ownership rule.
type FileRef struct {
	Source     Locator
	MemberName string
	SizeBytes  int64
}
