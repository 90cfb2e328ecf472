package model

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// runIDLayout is the UTC timestamp prefix of every run id. It sorts
// lexicographically in chronological order.
const runIDLayout = "20060102_150405"

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewRunID returns the canonical run id for a run of templateID started at now:
// <UTC timestamp>_<template_id>_run.
func NewRunID(now time.Time, templateID string) string {
	return fmt.Sprintf("%s_%s_run", now.UTC().Format(runIDLayout), templateID)
}

// DisambiguateRunID appends a ULID to a run id that collided with an existing
// workspace. The suffix keeps reverse lexicographic listing in creation order
// because the disambiguated id sorts after the canonical one.
func DisambiguateRunID(runID string) string {
	return runID + "_" + NewID()
}
