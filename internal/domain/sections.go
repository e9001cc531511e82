package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SectionKey is the clinical label of one of the four report sections.
type SectionKey string

const (
	SectionBackground SectionKey = "Zemin Aktivitesi"
	SectionAbnormal   SectionKey = "Anormal Bulgular"
	SectionArtifacts  SectionKey = "Artefaktlar"
	SectionConclusion SectionKey = "Sonuç ve Öneriler"
)

// SectionOrder is the fixed display order of the report sections.
var SectionOrder = [...]SectionKey{
	SectionBackground,
	SectionAbnormal,
	SectionArtifacts,
	SectionConclusion,
}

// SectionKind distinguishes prose sections from itemized ones.
type SectionKind string

const (
	KindNarrative SectionKind = "text"
	KindItemList  SectionKind = "list"
)

// Kind returns the kind of the section, or "" for an unknown key.
func (k SectionKey) Kind() SectionKind {
	switch k {
	case SectionBackground, SectionConclusion:
		return KindNarrative
	case SectionAbnormal, SectionArtifacts:
		return KindItemList
	default:
		return ""
	}
}

// IsValid reports whether k is one of the four fixed keys.
func (k SectionKey) IsValid() bool {
	return k.Kind() != ""
}

// ListItem is a positioned entry of an itemized section.
type ListItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Coordinates Box    `json:"coordinates"`
}

// Section is one classified report section. Narrative sections use Content and Description;
// itemized sections use Items.
type Section struct {
	Kind        SectionKind `json:"type"`
	Content     string      `json:"content"`
	Description string      `json:"description,omitempty"`
	Items       []ListItem  `json:"items,omitempty"`
}

// Sections holds the four report sections in their fixed order.
type Sections struct {
	entries [len(SectionOrder)]Section
}

// NewSections returns the four empty sections.
func NewSections() Sections {
	var s Sections
	for i, key := range SectionOrder {
		s.entries[i] = Section{Kind: key.Kind()}
		if key.Kind() == KindItemList {
			s.entries[i].Items = []ListItem{}
		}
	}
	return s
}

func sectionIndex(key SectionKey) int {
	for i, k := range SectionOrder {
		if k == key {
			return i
		}
	}
	return -1
}

// Get returns the section stored under key.
func (s Sections) Get(key SectionKey) (Section, bool) {
	i := sectionIndex(key)
	if i < 0 {
		return Section{}, false
	}
	return s.entries[i], true
}

// Set replaces the section stored under key. Unknown keys are ignored.
func (s *Sections) Set(key SectionKey, sec Section) {
	if i := sectionIndex(key); i >= 0 {
		s.entries[i] = sec
	}
}

// Each calls fn for every section in display order.
func (s Sections) Each(fn func(SectionKey, Section)) {
	for i, key := range SectionOrder {
		fn(key, s.entries[i])
	}
}

// Items returns every list item across itemized sections, in display order.
func (s Sections) Items() []ListItem {
	var items []ListItem
	for _, sec := range s.entries {
		items = append(items, sec.Items...)
	}
	return items
}

// MarshalJSON writes the sections as an object whose keys keep the display order.
func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range SectionOrder {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(key))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.entries[i])
		if err != nil {
			return nil, fmt.Errorf("marshaling section %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON. Unknown keys are ignored.
func (s *Sections) UnmarshalJSON(data []byte) error {
	var m map[SectionKey]Section
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = NewSections()
	for key, sec := range m {
		s.Set(key, sec)
	}
	return nil
}
