package enums

import "fmt"

// DesignationKind says whether money went to general support or a named sponsorship.
type DesignationKind string

const (
	DesignationKindGeneral     DesignationKind = "general"
	DesignationKindSponsorship DesignationKind = "sponsorship"
)

var validDesignationKinds = []DesignationKind{
	DesignationKindGeneral,
	DesignationKindSponsorship,
}

// String implements fmt.Stringer.
func (d DesignationKind) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DesignationKind) IsValid() bool {
	for _, candidate := range validDesignationKinds {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDesignationKind converts raw input into a DesignationKind.
func ParseDesignationKind(value string) (DesignationKind, error) {
	for _, candidate := range validDesignationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid designation kind %q", value)
}
