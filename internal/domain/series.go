package domain

// Cadence is the publishing frequency class of a series.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

type Series struct {
	ID          string
	Name        string
	Description string
	Prompt      string
	VoiceID     string
	Cadence     Cadence
	Category    string
}

// SeriesLookup resolves a series by its identifier.
type SeriesLookup interface {
	Lookup(id string) (Series, bool)
}

// SeriesCatalog is the full, ordered set of configured series.
type SeriesCatalog interface {
	SeriesLookup
	All() []Series
	IDs() []string
}
