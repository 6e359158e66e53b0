package models

// uiMode is the interaction state of the root model. Each variant carries
// only the data that mode needs.
type uiMode interface {
	modeName() string
}

type browseMode struct{}

type filterMode struct{}

// autoFilterMode picks a field of the selected record to prefill the filter.
type autoFilterMode struct{}

type groupMode struct{}

// threadMode shows the conversation around seedID.
type threadMode struct {
	seedID uint64
}

// detailMode shows one record; back is the mode to return to.
type detailMode struct {
	back uiMode
}

func (browseMode) modeName() string     { return "browse" }
func (filterMode) modeName() string     { return "filter" }
func (autoFilterMode) modeName() string { return "autofilter" }
func (groupMode) modeName() string      { return "group" }
func (threadMode) modeName() string     { return "thread" }
func (detailMode) modeName() string     { return "detail" }
