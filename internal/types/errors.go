package types

import (
	"errors"
	"fmt"
)

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ItemError is a per-opportunity failure. The item stays un-staged and is retried on the next run.
type ItemError struct {
	Stage  string
	ItemID string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s failed for item %s: %v", e.Stage, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func NewItemError(stage, itemID string, err error) *ItemError {
	return &ItemError{Stage: stage, ItemID: itemID, Err: err}
}

type CorruptStateError struct {
	Store string
	Err   error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("persisted state in %s is corrupt: %v", e.Store, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

type CommitError struct {
	Store  string
	Staged int
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of %d staged identifiers to %s failed: %v", e.Staged, e.Store, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

func IsItemError(err error) bool {
	var target *ItemError
	return errors.As(err, &target)
}

func IsCorruptState(err error) bool {
	var target *CorruptStateError
	return errors.As(err, &target)
}

func IsCommitError(err error) bool {
	var target *CommitError
	return errors.As(err, &target)
}

// IsFatal reports whether err ends the run rather than skipping a single item.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsItemError(err) && !IsCorruptState(err)
}
