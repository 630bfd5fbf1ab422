package intake

import "strings"

// stateTable maps the 50 states plus DC between code and display name.
var stateTable = []struct {
	Code string
	Name string
}{
	{"AL", "Alabama"}, {"AK", "Alaska"}, {"AZ", "Arizona"}, {"AR", "Arkansas"},
	{"CA", "California"}, {"CO", "Colorado"}, {"CT", "Connecticut"}, {"DE", "Delaware"},
	{"FL", "Florida"}, {"GA", "Georgia"}, {"HI", "Hawaii"}, {"ID", "Idaho"},
	{"IL", "Illinois"}, {"IN", "Indiana"}, {"IA", "Iowa"}, {"KS", "Kansas"},
	{"KY", "Kentucky"}, {"LA", "Louisiana"}, {"ME", "Maine"}, {"MD", "Maryland"},
	{"MA", "Massachusetts"}, {"MI", "Michigan"}, {"MN", "Minnesota"}, {"MS", "Mississippi"},
	{"MO", "Missouri"}, {"MT", "Montana"}, {"NE", "Nebraska"}, {"NV", "Nevada"},
	{"NH", "New Hampshire"}, {"NJ", "New Jersey"}, {"NM", "New Mexico"}, {"NY", "New York"},
	{"NC", "North Carolina"}, {"ND", "North Dakota"}, {"OH", "Ohio"}, {"OK", "Oklahoma"},
	{"OR", "Oregon"}, {"PA", "Pennsylvania"}, {"RI", "Rhode Island"}, {"SC", "South Carolina"},
	{"SD", "South Dakota"}, {"TN", "Tennessee"}, {"TX", "Texas"}, {"UT", "Utah"},
	{"VT", "Vermont"}, {"VA", "Virginia"}, {"WA", "Washington"}, {"WV", "West Virginia"},
	{"WI", "Wisconsin"}, {"WY", "Wyoming"}, {"DC", "District of Columbia"},
}

var (
	stateCodeToName = make(map[string]string, len(stateTable))
	stateNameToCode = make(map[string]string, len(stateTable))
)

func init() {
	for _, s := range stateTable {
		stateCodeToName[s.Code] = s.Name
		stateNameToCode[strings.ToLower(s.Name)] = s.Code
	}
}

// StateCode resolves a state name or two-letter code to its canonical code.
// Unrecognized values return "" — obligations under an unrecognized state
// group are dropped rather than failing the sync.
func StateCode(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}

	upper := strings.ToUpper(raw)
	if len(upper) == 2 {
		if _, ok := stateCodeToName[upper]; ok {
			return upper
		}
	}

	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	return stateNameToCode[key]
}

// StateName returns the display name for a state code, or the code itself if
// it is not recognized.
func StateName(code string) string {
	if name, ok := stateCodeToName[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}
