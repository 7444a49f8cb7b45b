package events

const (
	// KindEntryAppended identifies a new transcript entry.
	KindEntryAppended Kind = "transcript.entry_appended"
	// KindPlaceholderReplaced identifies an in-place placeholder replacement.
	KindPlaceholderReplaced Kind = "transcript.placeholder_replaced"
)

// EntryAppended marks a transcript entry appended at Index.
type EntryAppended struct {
	Base
	Index int
}

// NewEntryAppended creates an entry appended event.
func NewEntryAppended(index int) EntryAppended {
	return EntryAppended{Base: NewBase(KindEntryAppended), Index: index}
}

// PlaceholderReplaced marks an in-place replacement of the placeholder at
// Index by a deferred reply.
type PlaceholderReplaced struct {
	Base
	Index int
	Text  string
}

// NewPlaceholderReplaced creates a placeholder replaced event.
func NewPlaceholderReplaced(index int, text string) PlaceholderReplaced {
	return PlaceholderReplaced{Base: NewBase(KindPlaceholderReplaced), Index: index, Text: text}
}
