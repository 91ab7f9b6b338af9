package types

import "errors"

// Sentinel errors for Watchkeeper operations.
var (
	// ErrUnknownNode indicates a rule references a node id absent from the
	// registry. Evaluation skips the instance; authoring rejects the save.
	ErrUnknownNode = errors.New("unknown rule node")

	// ErrDispatchFailed indicates an action's external side effect failed.
	// Isolated per action; never aborts remaining actions or rules.
	ErrDispatchFailed = errors.New("notification dispatch failed")

	// ErrRuleNotFound indicates a rule id does not exist in the store.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists indicates a create collided with an existing rule id.
	ErrRuleExists = errors.New("rule already exists")

	// ErrGroupNotFound indicates a group id does not exist in the store.
	ErrGroupNotFound = errors.New("event group not found")

	// ErrLabelRequired indicates a rule definition with an empty label.
	ErrLabelRequired = errors.New("rule label required")

	// ErrLabelTooLong indicates a rule label exceeds MaxLabelLength.
	ErrLabelTooLong = errors.New("rule label exceeds maximum length")

	// ErrUnknownMatchPolicy indicates a match policy other than all/any.
	ErrUnknownMatchPolicy = errors.New("unknown condition match policy")

	// ErrMessageTooLarge indicates the event message exceeds MaxMessageLength.
	ErrMessageTooLarge = errors.New("event message exceeds maximum size")

	// ErrTooManyTags indicates too many tag key-value pairs on an event.
	ErrTooManyTags = errors.New("too many tag pairs")

	// ErrTagKeyTooLong indicates a tag key exceeds MaxTagKeyLength.
	ErrTagKeyTooLong = errors.New("tag key too long")

	// ErrTagValueTooLong indicates a tag value exceeds MaxTagValueLength.
	ErrTagValueTooLong = errors.New("tag value too long")
)
