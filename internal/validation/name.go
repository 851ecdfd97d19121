package validation

import (
	"errors"
	"strings"
	"unicode"
)

const (
	maxNameLength     = 128
	maxZoneNameLength = 17
)

var (
	ErrNameEmpty          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name too long (max 128 characters)")
	ErrZoneNameTooLong    = errors.New("zone name too long (max 17 characters)")
	ErrNameTraversal      = errors.New("name cannot contain '..'")
	ErrNamePathSeparator  = errors.New("name cannot contain path separators")
	ErrNameInvalidCharSet = errors.New("name contains invalid characters")
)

// CheckName validates that an entity name is safe to use as a file name.
func CheckName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	if strings.Contains(name, "..") {
		return ErrNameTraversal
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrNamePathSeparator
	}

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			continue
		}
		return ErrNameInvalidCharSet
	}

	return nil
}

// CheckZoneName applies CheckName plus the chain name length limit zones
// are subject to.
func CheckZoneName(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if len(name) > maxZoneNameLength {
		return ErrZoneNameTooLong
	}
	return nil
}
