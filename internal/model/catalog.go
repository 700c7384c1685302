package model

// Rarity is the tier the remote source uses to partition species listings.
type Rarity string

const (
	RarityNeverObserved Rarity = "neverobserved"
	RarityVeryRare      Rarity = "veryrare"
	RarityRare          Rarity = "rare"
	RarityUnusual       Rarity = "unusual"
	RarityCommon        Rarity = "common"
	RarityVeryCommon    Rarity = "verycommon"
	RarityEscaped       Rarity = "escaped"
)

// DefaultRarities is the listing order used when no rarity file is configured.
var DefaultRarities = []Rarity{
	RarityNeverObserved,
	RarityVeryRare,
	RarityRare,
	RarityUnusual,
	RarityCommon,
	RarityVeryCommon,
	RarityEscaped,
}

// Family is a taxonomic family.
type Family struct {
	ID        int    `json:"id" db:"id"`
	LatinName string `json:"latin_name" db:"latin_name"`
}

// Species is a catalog entry. ID is the source's stable species id.
type Species struct {
	ID         int    `json:"speciesid" db:"speciesid"`
	LatinName  string `json:"latinname" db:"latinname"`
	GermanName string `json:"germanname" db:"germanname"`
	Rarity     Rarity `json:"rarity" db:"rarity"`
	FamilyID   int    `json:"family_id" db:"family_id"`
}

// SpeciesCount is the number of stored observations for one species.
type SpeciesCount struct {
	GermanName string `json:"name"`
	Count      int64  `json:"count"`
	Rarity     Rarity `json:"rarity"`
}
