package shutdown

import (
	"github.com/fsnotify/fsnotify"
)

// Kind classifies a filesystem event.
type Kind int

const (
	KindCreated Kind = iota + 1
	KindDeleted
	KindRenamed
	KindChanged
	KindError
)

// String returns the lower-case name of k.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindDeleted:
		return "deleted"
	case KindRenamed:
		return "renamed"
	case KindChanged:
		return "changed"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single change notification from the watched directory.
type Event struct {
	Kind Kind

	// Path is the full path of the affected item.
	Path string

	// OldPath is the prior path of a renamed item, when the source knows it.
	OldPath string

	// Err is set on KindError events.
	Err error
}

// fromFSNotify maps an fsnotify event onto an Event. Chmod-only events are
// dropped: attribute changes never affect loaded binaries.
//
// fsnotify reports a rename under the old name and delivers the new name as
// a separate create, so OldPath stays empty for events from this source.
func fromFSNotify(ev fsnotify.Event) (Event, bool) {
	var kind Kind

	switch {
	case ev.Has(fsnotify.Create):
		kind = KindCreated
	case ev.Has(fsnotify.Remove):
		kind = KindDeleted
	case ev.Has(fsnotify.Rename):
		kind = KindRenamed
	case ev.Has(fsnotify.Write):
		kind = KindChanged
	default:
		return Event{}, false
	}

	return Event{Kind: kind, Path: ev.Name}, true
}
