package domain

import (
	"fmt"
	"math"
)

// ErrTargetNil is returned when the passed target, which should be a pointer,
// is passed as a nil value.
type ErrTargetNil struct{}

func (e ErrTargetNil) Error() string { return "target interface is nil" }

type ErrBufferReset struct{}

func (e ErrBufferReset) Error() string { return "executor buffer was reset" }

type ErrCorruptFiles struct {
	CorruptionRate        float64
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
}

func (e ErrCorruptFiles) Error() string {
	return fmt.Sprintf("%f%% of the data file is corrupt, more than given corruptAlertThreshold (%f%%). Cautiously refusing to load to prevent data loss.", math.Floor(100*e.CorruptionRate), math.Floor(100*e.CorruptAlertThreshold))
}

type ErrFlushToStorage struct {
	ErrorOnFsync error
	ErrorOnClose error
}

func (e ErrFlushToStorage) Error() string {
	var err error
	if e.ErrorOnFsync != nil {
		err = e.ErrorOnFsync
	} else {
		err = e.ErrorOnClose
	}
	return fmt.Sprint("storage flush error:", err.Error())
}

// ErrUniqueViolated is returned by [Index] when a key being inserted
// already belongs to a different document under a unique index.
type ErrUniqueViolated struct {
	FieldName string
	Key       any
}

func (e ErrUniqueViolated) Error() string {
	return fmt.Sprintf("unique constraint violated on field %q for key %v", e.FieldName, e.Key)
}

// ErrInvalidIndexField is reserved for fields an index cannot be built
// over. No operation returns it: indexes accept any field value, including
// composite ones.
type ErrInvalidIndexField struct {
	FieldName string
	Reason    string
}

func (e ErrInvalidIndexField) Error() string {
	return fmt.Sprintf("invalid index field %q: %s", e.FieldName, e.Reason)
}

// ErrMissingFieldName is returned by ensureIndex when no fieldName is given.
type ErrMissingFieldName struct{}

func (e ErrMissingFieldName) Error() string { return "missing field name for index" }

// ErrInvalidKey is returned when a document key starts with '$' or
// contains '.', outside of the sentinel keys reserved for log records.
type ErrInvalidKey struct {
	Key string
}

func (e ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid key %q: keys cannot start with '$' or contain '.'", e.Key)
}

// ErrInvalidModifier is returned when a modify() call mixes mutators with
// raw keys. A mutator applied to an incompatible value fails with a plain
// error instead.
type ErrInvalidModifier struct {
	Reason string
}

func (e ErrInvalidModifier) Error() string { return e.Reason }

// ErrMixedProjection is returned when a projection mixes inclusion and
// exclusion fields (besides _id, which may always be excluded).
type ErrMixedProjection struct{}

func (e ErrMixedProjection) Error() string {
	return "can't both keep and omit fields except for _id"
}

// ErrUnknownOperator is reserved for unrecognised query or modifier
// operators.
type ErrUnknownOperator struct {
	Operator string
}

func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// ErrHookNotInvertible is returned by Persistence construction when the
// configured beforeWrite/afterRead hooks fail the round-trip self-test.
type ErrHookNotInvertible struct {
	Sample string
	Got    string
}

func (e ErrHookNotInvertible) Error() string {
	return fmt.Sprintf("serialization hooks are not invertible: afterRead(beforeWrite(%q)) = %q", e.Sample, e.Got)
}

// ErrIO pairs a filesystem operation failure with the operation name. No
// operation returns it: storage failures are returned as the underlying
// errors, or as [ErrFlushToStorage] when fsync or close fails.
type ErrIO struct {
	Op    string
	Cause error
}

func (e ErrIO) Error() string { return fmt.Sprintf("io error during %s: %s", e.Op, e.Cause) }

func (e ErrIO) Unwrap() error { return e.Cause }
