package store

// EntityKind selects which entity family a tag query runs over.
type EntityKind string

const (
	KindPrompt     EntityKind = "prompt"
	KindCollection EntityKind = "collection"
	KindAll        EntityKind = "all"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindPrompt, KindCollection, KindAll:
		return true
	}
	return false
}
