package patterns

// Tag classifies what kind of policy a pattern enforces. Priority order
// (highest first) is used to break ties when multiple patterns match the
// same content: Slur > Phishing > InviteLink > Custom (spec §4.A).
type Tag int

const (
	TagCustom Tag = iota
	TagInviteLink
	TagPhishing
	TagSlur
)

// priority returns the tie-break rank of a tag; higher wins.
func (t Tag) priority() int { return int(t) }

func (t Tag) String() string {
	switch t {
	case TagSlur:
		return "slur"
	case TagPhishing:
		return "phishing"
	case TagInviteLink:
		return "invite_link"
	default:
		return "custom"
	}
}

// DefaultSeverity is the severity assigned to a Violation synthesized
// directly from a regex match with no per-pattern override (SPEC_FULL
// §12 "Regex-layer severity defaults"; S1 requires Slur to be 1.0).
func (t Tag) DefaultSeverity() float64 {
	switch t {
	case TagSlur:
		return 1.0
	case TagPhishing:
		return 0.85
	case TagInviteLink:
		return 0.6
	default:
		return 0.5
	}
}

// Source is one pattern as loaded from the pattern source file: a regular
// expression body, its classification tag, and whether it overrides the
// default case-insensitive matching and severity.
type Source struct {
	Name            string  `yaml:"name"`
	Tag             string  `yaml:"tag"`
	Expr            string  `yaml:"expr"`
	CaseSensitive   bool    `yaml:"case_sensitive"`
	SeverityOverride *float64 `yaml:"severity,omitempty"`
}

func parseTag(s string) (Tag, bool) {
	switch s {
	case "slur", "Slur":
		return TagSlur, true
	case "phishing", "Phishing":
		return TagPhishing, true
	case "invite_link", "InviteLink", "invite":
		return TagInviteLink, true
	case "custom", "Custom", "":
		return TagCustom, true
	default:
		return TagCustom, false
	}
}
