package wasm

import (
	"fmt"
	"strconv"
)

// LinkError is returned by Store.Instantiate when an import can't be satisfied. No instance of the module is
// allocated when this is returned.
type LinkError struct {
	// ImportModule and ImportName are the two-level name of the failed import.
	ImportModule, ImportName string
	// Kind is the type of the import, as declared by the importing module.
	Kind ExternType
	// Reason is the full description of the failure.
	Reason string
}

// Error implements error.
func (e *LinkError) Error() string {
	return e.Reason
}

func importName(imp *Import) string {
	return imp.Module + "." + imp.Name
}

func errUnknownImport(imp *Import) *LinkError {
	return &LinkError{
		ImportModule: imp.Module,
		ImportName:   imp.Name,
		Kind:         imp.Type,
		Reason:       "unknown import " + importName(imp),
	}
}

func errIncompatibleExternType(imp *Import, actual ExternType) *LinkError {
	return &LinkError{
		ImportModule: imp.Module,
		ImportName:   imp.Name,
		Kind:         imp.Type,
		Reason: fmt.Sprintf("incompatible import type for %s, expected %s, got %s",
			importName(imp), externTypeDescription(imp.Type), externTypeDescription(actual)),
	}
}

func errIncompatibleImport(imp *Import, what string, expected, actual string) *LinkError {
	return &LinkError{
		ImportModule: imp.Module,
		ImportName:   imp.Name,
		Kind:         imp.Type,
		Reason: fmt.Sprintf("incompatible import type: %s for %s, expected %s, got %s",
			what, importName(imp), expected, actual),
	}
}

func externTypeDescription(t ExternType) string {
	if t == ExternTypeFunc {
		return "function"
	}
	return ExternTypeName(t)
}

func limitsString(min uint32, max *uint32) string {
	if max == nil {
		return "{min " + strconv.FormatUint(uint64(min), 10) + "}"
	}
	return "{min " + strconv.FormatUint(uint64(min), 10) + ", max " + strconv.FormatUint(uint64(*max), 10) + "}"
}
