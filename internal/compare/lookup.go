package compare

import (
	"context"
	"errors"
	"fmt"

	"regcheck/internal/descriptor"
	"regcheck/internal/registry"
)

// ParseMode parses "template" or "round-trip". Empty means template.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "template":
		return ModeTemplate, nil
	case "round-trip":
		return ModeRoundTrip, nil
	default:
		return ModeTemplate, fmt.Errorf("invalid mode %q, must be template or round-trip", s)
	}
}

// Lookup fetches the entry a template is checked against: the entry with
// id when one is given, otherwise the first listed entry carrying the
// template's name. A missing entry is a registry.NotFoundError.
func Lookup(ctx context.Context, reg registry.Registry, template *descriptor.Service, id string, perPage int) (*descriptor.Service, error) {
	if id != "" {
		return reg.Read(ctx, id)
	}

	name := template.NameValue()
	if name == "" {
		return nil, errors.New("template has no name; look the entry up by id")
	}
	svc, _, err := registry.FindByName(ctx, reg, name, perPage)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, &registry.NotFoundError{ID: name, Message: "no listed entry has this name"}
	}
	return svc, nil
}
