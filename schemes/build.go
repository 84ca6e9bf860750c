package schemes

import (
	"github.com/pkg/errors"
)

// Definition is a declarative description of a scheme, as found in a models file
type Definition struct {
	Scheme  string            `toml:"scheme"`
	Column  string            `toml:"column"`
	Layout  string            `toml:"layout"`
	Shards  int               `toml:"shards"`
	Values  map[string]string `toml:"values"`
	Default string            `toml:"default"`
	Parts   []Definition      `toml:"parts"`
}

// Build creates a scheme from the given definition
func Build(d Definition) (*Scheme, error) {
	if d.Scheme == "composite" {
		if len(d.Parts) == 0 {
			return nil, errors.New("composite scheme requires parts")
		}

		parts := make([]Part, len(d.Parts))
		for i, pd := range d.Parts {
			p, err := buildPart(pd)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid part #%d", i)
			}
			parts[i] = p
		}
		return Composite(parts...), nil
	}

	p, err := buildPart(d)
	if err != nil {
		return nil, err
	}
	return Composite(p), nil
}

func buildPart(d Definition) (Part, error) {
	if d.Column == "" {
		return nil, errors.Errorf("%s scheme requires a column", d.Scheme)
	}

	switch d.Scheme {
	case "yearly":
		return Time(d.Column, "2006"), nil
	case "monthly":
		return Time(d.Column, "2006_01"), nil
	case "daily":
		return Time(d.Column, "2006_01_02"), nil
	case "time":
		if d.Layout == "" {
			return nil, errors.New("time scheme requires a layout")
		}
		return Time(d.Column, d.Layout), nil
	case "hash":
		if d.Shards < 1 {
			return nil, errors.New("hash scheme requires a positive number of shards")
		}
		return HashOf(d.Column, d.Shards), nil
	case "list":
		if len(d.Values) == 0 {
			return nil, errors.New("list scheme requires values")
		}
		return ListOf(d.Column, d.Values, d.Default), nil
	case "value":
		return ValueOf(d.Column), nil
	}
	return nil, errors.Errorf("unknown scheme %q", d.Scheme)
}
