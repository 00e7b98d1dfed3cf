package automation

import "strings"

const (
	maxNameLength   = 100
	maxDomainLength = 50
)

// validConditionTypes is built once and consulted by ValidateConditionType.
var validConditionTypes = map[ConditionType]struct{}{
	ConditionOnTrue:        {},
	ConditionOnFalse:       {},
	ConditionOnSwitchTrue:  {},
	ConditionOnSwitchFalse: {},
	ConditionOnce:          {},
}

// ValidateName checks a program's display name.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

// ValidateAddress checks that address is within the user-programmable
// range (spec.md §3: "Address values are stable ... ≥ USER_SPACE_BASE").
func ValidateAddress(address int) error {
	if address < USERSpaceBase {
		return ErrInvalidAddress
	}
	return nil
}

// ValidateConditionType checks that t is one of the recognised modes.
func ValidateConditionType(t ConditionType) error {
	if _, ok := validConditionTypes[t]; !ok {
		return ErrInvalidConditionType
	}
	return nil
}

// ValidateProgram runs all field-level validations for a new or updated
// program record.
func ValidateProgram(program *ProgramRecord) error {
	if program == nil {
		return ErrInvalidProgram
	}
	if err := ValidateAddress(program.Address); err != nil {
		return err
	}
	if err := ValidateName(program.Name); err != nil {
		return err
	}
	program.Domain = sanitizeDomain(program.Domain)
	if len(program.Domain) > maxDomainLength {
		return ErrInvalidProgram
	}
	if err := ValidateConditionType(program.ConditionType); err != nil {
		return err
	}
	return nil
}

// sanitizeDomain normalises a domain string before storage, so that
// case-insensitive duplicates ("Lighting" vs "lighting") don't produce
// distinct ModuleBus event domains or DynamicApiRegistry lookup keys.
func sanitizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
