package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// A Named object is an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NameMustBeValid panics if the name does not follow the naming convention.
//
// A name is a dot separated hierarchy of elements, such as "Model.Delay.In".
// Each element must be non-empty, must start with a capital letter, and may
// carry square-bracket indices, such as "Source[2]".
func NameMustBeValid(name string) {
	if err := ValidateName(name); err != nil {
		panic(err.Error())
	}
}

// ValidateName returns an error describing why the name breaks the naming
// convention, or nil if the name is valid.
func ValidateName(name string) error {
	for _, elem := range strings.Split(name, ".") {
		if err := elementMustBeValid(elem); err != nil {
			return fmt.Errorf("name %q is not valid: %w", name, err)
		}
	}

	return nil
}

func elementMustBeValid(elem string) error {
	base, err := stripIndices(elem)
	if err != nil {
		return err
	}

	if base == "" {
		return fmt.Errorf("name element must not be empty")
	}

	if strings.ContainsAny(base, "_\"'- ") {
		return fmt.Errorf("name element %q has an invalid character", base)
	}

	if base[0] < 'A' || base[0] > 'Z' {
		return fmt.Errorf("name element %q must start with a capital letter",
			base)
	}

	return nil
}

func stripIndices(elem string) (string, error) {
	open := strings.IndexByte(elem, '[')
	if open < 0 {
		if strings.ContainsRune(elem, ']') {
			return "", fmt.Errorf("name brackets must match")
		}

		return elem, nil
	}

	rest := elem[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", fmt.Errorf("name brackets must match")
		}

		closing := strings.IndexByte(rest, ']')
		if closing < 0 {
			return "", fmt.Errorf("name brackets must match")
		}

		if _, err := strconv.Atoi(rest[1:closing]); err != nil {
			return "", fmt.Errorf("name index must be integer")
		}

		rest = rest[closing+1:]
	}

	return elem[:open], nil
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds a name from a parent name, an element name and an
// index.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
