package model

// ConceptMeta describes one catalog concept (a THS-style sector or thematic
// index) as loaded from the store.
type ConceptMeta struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Exchange  string `json:"exchange"`
	ListDate  string `json:"list_date"`
	Type      string `json:"type"` // "N" concept, "I" industry, "S" special
	Available bool   `json:"available"`
}

// ReasonCacheEntry is the persisted resolution of one exact reason text.
// PreConcepts records the pre-filter candidate set for auditing; Concepts is
// the authoritative resolved list (possibly empty). Entries never expire.
type ReasonCacheEntry struct {
	Reason      string   `json:"reason"`
	PreConcepts []string `json:"pre_concepts"`
	Concepts    []string `json:"concepts"`
}
