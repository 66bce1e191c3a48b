// Package embedb provides an embedded, MongoDB-flavoured document database
// for Go.
//
// Data is kept in memory and, unless configured as in-memory-only, mirrored
// to an append-only datafile that is periodically compacted. Secondary
// indexes support unique, sparse and TTL constraints. Queries are matched
// against a Mongo-like operator set and returned through a cursor that
// supports projection, sort, skip and limit.
//
// The basic usage starts with creating a new [DB] instance via [New], then
// calling [DB.LoadDatabase] before performing any other operation (unless
// the datastore is in-memory-only).
package embedb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-embedb/embedb/domain"
	"github.com/go-embedb/embedb/internal/adapter/datastore"
)

var (
	// ErrTargetNil is returned when the target passed to decode data into,
	// for example in [DB.FindOne], is nil.
	ErrTargetNil = domain.ErrTargetNil{}
	// ErrBufferReset is returned to callers whose task was queued in the
	// executor's buffer and discarded by a buffer reset. The datastore does
	// not buffer operations, so no [DB] method returns it.
	ErrBufferReset = domain.ErrBufferReset{}
)

// ErrCorruptFiles is returned by [DB.LoadDatabase] when the datafile's
// corruption rate exceeds the configured threshold.
type ErrCorruptFiles = domain.ErrCorruptFiles

// ErrFlushToStorage wraps a failure to durably persist data to disk, either
// on fsync or on close.
type ErrFlushToStorage = domain.ErrFlushToStorage

// ErrUniqueViolated is returned when an insert or update would introduce a
// duplicate key under a unique [Index].
type ErrUniqueViolated = domain.ErrUniqueViolated

// ErrInvalidIndexField is reserved for fields an index can't be built over.
// No operation returns it: indexes accept any field value, including
// composite ones.
type ErrInvalidIndexField = domain.ErrInvalidIndexField

// ErrMissingFieldName is returned by [DB.EnsureIndex] when no field name is
// given.
type ErrMissingFieldName = domain.ErrMissingFieldName

// ErrInvalidKey is returned when a document key starts with '$' or contains
// '.', outside of the sentinel keys reserved for log records.
type ErrInvalidKey = domain.ErrInvalidKey

// ErrInvalidModifier is returned when an update mixes modifier operators
// with raw field assignments. A modifier applied to an incompatible value
// fails with a plain error instead.
type ErrInvalidModifier = domain.ErrInvalidModifier

// ErrMixedProjection is returned when a projection mixes inclusion and
// exclusion fields, besides "_id" which may always be excluded.
type ErrMixedProjection = domain.ErrMixedProjection

// ErrUnknownOperator is reserved for unrecognized query or modifier
// operators. No operation returns it: unknown operators are reported with
// plain errors.
type ErrUnknownOperator = domain.ErrUnknownOperator

// ErrHookNotInvertible is returned by persistence construction when the
// [WithPersistenceBeforeWrite] and [WithPersistenceAfterRead] hooks fail a
// round-trip self-test.
type ErrHookNotInvertible = domain.ErrHookNotInvertible

// ErrIO pairs a filesystem operation failure with the operation name. No
// operation returns it: storage failures are returned as the underlying
// errors, or as [ErrFlushToStorage] when fsync or close fails.
type ErrIO = domain.ErrIO

// New creates a new [DB] instance with the provided configuration options.
// It does not touch the filesystem: call [DB.LoadDatabase] to load or
// create the datafile, unless the datastore is in-memory-only.
func New(options ...Option) (DB, error) {
	return datastore.NewDatastore(options...)
}

// DB defines the main interface for interacting with the embedded database.
// It provides data persistence, indexing and query functionality with
// context-aware operations, and is safe to use concurrently from multiple
// goroutines: every operation is serialized through an internal executor.
//
// If configured as in-memory-only, callers may start using the database
// right away. Otherwise, [DB.LoadDatabase] must be called first.
type DB interface {
	// LoadDatabase initializes or loads the database file, preparing it
	// for further operations. Must be called before using other methods
	// except for in-memory-only databases.
	LoadDatabase(ctx context.Context) error

	// DropDatabase permanently deletes all data and removes the database
	// file, if any.
	DropDatabase(ctx context.Context) error

	// CompactDatafile rewrites the data file to remove duplicates caused
	// by the append-only log format.
	CompactDatafile(ctx context.Context) error

	// GetAllData returns a cursor over all documents in the datastore.
	GetAllData(ctx context.Context) (Cursor, error)

	// EnsureIndex creates an index on a field to improve query
	// performance. If the index already exists, this is a no-op. Options
	// can be used to configure behavior:
	//   - [WithFields]
	//   - [WithUnique]
	//   - [WithSparse]
	//   - [WithTTL]
	EnsureIndex(ctx context.Context, options ...EnsureIndexOption) error

	// RemoveIndex deletes existing indexes by field name.
	RemoveIndex(ctx context.Context, fieldNames ...string) error

	// Insert adds one or more documents to the database and returns a
	// cursor over the stored versions, including generated metadata such
	// as IDs.
	//
	// Documents can be structs or map[string]any, and may be arbitrarily
	// nested. For structs, unexported fields are ignored; a field tagged
	// `embedb:"name"` is stored under "name" instead of the Go field
	// name; ",omitempty" and ",omitzero" tag options behave as in
	// encoding/json.
	Insert(ctx context.Context, newDocs ...any) (Cursor, error)

	// Count returns the number of documents matching the given query.
	Count(ctx context.Context, query any) (int64, error)

	// Find filters documents using the available indexes and the
	// matcher, returning a cursor over all matches. Options control
	// result shape:
	//   - [WithProjection]
	//   - [WithSkip]
	//   - [WithLimit]
	//   - [WithSort]
	Find(ctx context.Context, query any, options ...FindOption) (Cursor, error)

	// FindOne decodes the first document matching the query into target.
	// Accepts the same options as [DB.Find], though any limit is replaced
	// with 1.
	FindOne(ctx context.Context, query any, target any, options ...FindOption) error

	// Update modifies documents matching the query using updateQuery, and
	// returns a cursor over the affected documents. Options:
	//   - [WithUpsert]
	//   - [WithUpdateMulti]
	Update(ctx context.Context, query any, updateQuery any, options ...UpdateOption) (Cursor, error)

	// Remove deletes documents matching the query. Returns the number of
	// documents removed. By default only one document is removed;
	// [WithRemoveMulti] allows more than one.
	Remove(ctx context.Context, query any, options ...RemoveOption) (int64, error)

	// WaitCompaction blocks until either ctx is canceled or a compaction
	// completes. It never returns an error unless ctx is canceled.
	WaitCompaction(ctx context.Context) error

	// SetAutocompactionInterval schedules [DB.CompactDatafile] to run
	// repeatedly at the given interval, replacing any previously
	// scheduled interval. Intervals below 5s are floored to 5s.
	SetAutocompactionInterval(interval time.Duration)

	// StopAutocompaction cancels any interval scheduled by
	// [DB.SetAutocompactionInterval]. It is a no-op if none is scheduled.
	StopAutocompaction()
}

// Serializer converts documents to bytes for storage.
type Serializer = domain.Serializer

// Deserializer converts bytes back to documents.
type Deserializer = domain.Deserializer

// Storage provides low-level file operations with crash-safety guarantees.
type Storage = domain.Storage

// Decoder converts decoded document maps into user-provided target types.
type Decoder = domain.Decoder

// Comparer provides Mongo-style ordering and comparison across value types.
type Comparer = domain.Comparer

// TimeGetter provides the current time for timestamping operations.
type TimeGetter = domain.TimeGetter

// FieldNavigator provides field access with dot-notation support.
type FieldNavigator = domain.FieldNavigator

// Hasher generates hash values used to index documents by ID.
type Hasher = domain.Hasher

// IDGenerator creates unique IDs for new documents.
type IDGenerator = domain.IDGenerator

// Document represents a record in the persistence layer.
type Document = domain.Document

// Matcher evaluates whether documents match query criteria.
type Matcher = domain.Matcher

// Modifier applies update operators to documents.
type Modifier = domain.Modifier

// Persistence manages database serialization and datafile operations.
type Persistence = domain.Persistence

// Cursor provides iteration over query results with pagination support.
type Cursor = domain.Cursor

// Index provides fast document lookups based on field values.
type Index = domain.Index

// Sort represents an ordered list of fields used, respectively, to sort
// query results.
type Sort = domain.Sort

// SortName represents a single field and the order used to sort it: a
// positive value means ascending order, a negative value means descending
// order.
type SortName = domain.SortName

// DocumentFactory constructs a [Document] from structured data. Given nil,
// it should return a document of length 0.
type DocumentFactory = domain.DocumentFactory

// CursorFactory constructs a [Cursor] over an ordered set of documents.
type CursorFactory = domain.CursorFactory

// IndexFactory constructs an [Index] over a set of fields.
type IndexFactory = domain.IndexFactory

// FindOption configures [DB.Find] and [DB.FindOne] behavior.
type FindOption = domain.FindOption

// WithProjection specifies which fields to include or exclude from query
// results.
func WithProjection(p any) FindOption {
	return domain.WithFindProjection(p)
}

// WithSkip sets the number of matching documents to skip.
func WithSkip(s int64) FindOption {
	return domain.WithFindSkip(s)
}

// WithLimit sets the maximum number of documents to return.
func WithLimit(l int64) FindOption {
	return domain.WithFindLimit(l)
}

// WithSort specifies the sort order for query results.
func WithSort(s Sort) FindOption {
	return domain.WithFindSort(s)
}

// UpdateOption configures [DB.Update] behavior.
type UpdateOption = domain.UpdateOption

// WithUpdateMulti enables updating every document that matches the query,
// instead of just the first.
func WithUpdateMulti(m bool) UpdateOption {
	return domain.WithUpdateMulti(m)
}

// WithUpsert inserts a document derived from the query and update when no
// document matches.
func WithUpsert(u bool) UpdateOption {
	return domain.WithUpsert(u)
}

// RemoveOption configures [DB.Remove] behavior.
type RemoveOption = domain.RemoveOption

// WithRemoveMulti enables removing every document that matches the query,
// instead of just the first.
func WithRemoveMulti(m bool) RemoveOption {
	return domain.WithRemoveMulti(m)
}

// EnsureIndexOption configures [DB.EnsureIndex] behavior.
type EnsureIndexOption = domain.EnsureIndexOption

// WithFields specifies the field names for the index.
func WithFields(fn ...string) EnsureIndexOption {
	return domain.WithEnsureIndexFieldNames(fn...)
}

// WithUnique creates a unique index that rejects duplicate keys.
func WithUnique(u bool) EnsureIndexOption {
	return domain.WithEnsureIndexUnique(u)
}

// WithSparse creates a sparse index that excludes documents missing the
// indexed field.
func WithSparse(s bool) EnsureIndexOption {
	return domain.WithEnsureIndexSparse(s)
}

// WithTTL creates a TTL index that automatically evicts documents once the
// given duration has elapsed since the indexed field's timestamp.
func WithTTL(e time.Duration) EnsureIndexOption {
	return domain.WithEnsureIndexExpiry(e)
}

// CursorOption configures cursor construction.
type CursorOption = domain.CursorOption

// WithCursorDecoder sets the decoder used to scan cursor results into
// target values.
func WithCursorDecoder(d Decoder) CursorOption {
	return domain.WithCursorDecoder(d)
}

// IndexOption configures index construction.
type IndexOption = domain.IndexOption

// WithIndexFieldName sets the field name for the index.
func WithIndexFieldName(f string) IndexOption {
	return domain.WithIndexFieldName(f)
}

// WithIndexUnique creates a unique index that rejects duplicate keys.
func WithIndexUnique(u bool) IndexOption {
	return domain.WithIndexUnique(u)
}

// WithIndexSparse creates a sparse index that excludes documents missing
// the indexed field.
func WithIndexSparse(s bool) IndexOption {
	return domain.WithIndexSparse(s)
}

// WithIndexExpireAfter creates a TTL index that automatically evicts
// documents after the given duration.
func WithIndexExpireAfter(e time.Duration) IndexOption {
	return domain.WithIndexExpireAfter(e)
}

// WithIndexDocumentFactory sets the document factory used when rebuilding
// documents from index keys.
func WithIndexDocumentFactory(d func(any) (Document, error)) IndexOption {
	return domain.WithIndexDocumentFactory(d)
}

// WithIndexComparer sets the comparer used for key ordering in the index.
func WithIndexComparer(c Comparer) IndexOption {
	return domain.WithIndexComparer(c)
}

// WithIndexHasher sets the hasher used by the index.
func WithIndexHasher(h Hasher) IndexOption {
	return domain.WithIndexHasher(h)
}

// WithIndexFieldNavigator sets the field navigator used to resolve indexed
// values from documents.
func WithIndexFieldNavigator(f FieldNavigator) IndexOption {
	return domain.WithIndexFieldNavigator(f)
}

// Option configures [New] through the functional options pattern.
type Option = domain.DatastoreOption

// WithFilename sets the database filename for the datastore.
func WithFilename(f string) Option {
	return domain.WithDatastoreFilename(f)
}

// WithTimestampData enables automatic timestamping of documents with
// createdAt and updatedAt fields.
func WithTimestampData(t bool) Option {
	return domain.WithDatastoreTimestampData(t)
}

// WithInMemoryOnly enables in-memory only mode without file persistence.
func WithInMemoryOnly(i bool) Option {
	return domain.WithDatastoreInMemoryOnly(i)
}

// WithSerializer sets the serializer used to convert documents to bytes.
func WithSerializer(s Serializer) Option {
	return domain.WithDatastoreSerializer(s)
}

// WithDeserializer sets the deserializer used to convert bytes to
// documents.
func WithDeserializer(d Deserializer) Option {
	return domain.WithDatastoreDeserializer(d)
}

// WithCorruptionThreshold sets the fraction of corrupt records tolerated
// before [DB.LoadDatabase] refuses to load, returning [ErrCorruptFiles].
func WithCorruptionThreshold(c float64) Option {
	return domain.WithDatastoreCorruptAlertThreshold(c)
}

// WithComparer sets the comparer used for value comparisons and sorting.
func WithComparer(c Comparer) Option {
	return domain.WithDatastoreComparer(c)
}

// WithFileMode sets the file permissions used for the datafile.
func WithFileMode(f os.FileMode) Option {
	return domain.WithDatastoreFileMode(f)
}

// WithDirMode sets the directory permissions used for the datafile's
// parent directory.
func WithDirMode(d os.FileMode) Option {
	return domain.WithDatastoreDirMode(d)
}

// WithPersistence sets the persistence implementation used for durable
// storage.
func WithPersistence(p Persistence) Option {
	return domain.WithDatastorePersistence(p)
}

// WithStorage sets the low-level file storage implementation.
func WithStorage(s Storage) Option {
	return domain.WithDatastoreStorage(s)
}

// WithIndexFactory sets the factory function used to construct indexes.
func WithIndexFactory(i IndexFactory) Option {
	return domain.WithDatastoreIndexFactory(i)
}

// WithDocumentFactory sets the factory function used to construct
// [Document] values.
func WithDocumentFactory(d DocumentFactory) Option {
	return domain.WithDatastoreDocumentFactory(d)
}

// WithDecoder sets the decoder used to scan documents into target values.
func WithDecoder(d Decoder) Option {
	return domain.WithDatastoreDecoder(d)
}

// WithMatcher sets the matcher implementation used to evaluate queries.
func WithMatcher(m Matcher) Option {
	return domain.WithDatastoreMatcher(m)
}

// WithCursorFactory sets the factory function used to construct cursors.
func WithCursorFactory(c CursorFactory) Option {
	return domain.WithDatastoreCursorFactory(c)
}

// WithModifier sets the modifier implementation used to apply updates.
func WithModifier(m Modifier) Option {
	return domain.WithDatastoreModifier(m)
}

// WithTimeGetter sets the time source used for timestamping.
func WithTimeGetter(t TimeGetter) Option {
	return domain.WithDatastoreTimeGetter(t)
}

// WithHasher sets the hasher used to index documents by ID.
func WithHasher(h Hasher) Option {
	return domain.WithDatastoreHasher(h)
}

// WithFieldNavigator sets the field navigator used to resolve dotted field
// paths.
func WithFieldNavigator(f FieldNavigator) Option {
	return domain.WithDatastoreFieldNavigator(f)
}

// WithIDGenerator sets the generator used to create new document IDs.
func WithIDGenerator(i IDGenerator) Option {
	return domain.WithDatastoreIDGenerator(i)
}

// WithLogger sets the structured logger used for datastore events such as
// index changes, TTL evictions and compaction.
func WithLogger(l *slog.Logger) Option {
	return domain.WithDatastoreLogger(l)
}

// IDGeneratorOption configures the default [IDGenerator].
type IDGeneratorOption = domain.IDGeneratorOption

// WithRandomReader sets the entropy source used by the default
// [IDGenerator].
func WithRandomReader(r io.Reader) IDGeneratorOption {
	return domain.WithIDGeneratorReader(r)
}

// PersistenceOption configures [Persistence] construction.
type PersistenceOption = domain.PersistenceOption

// WithPersistenceBeforeWrite sets a hook applied to every serialized
// document immediately before it is written to the datafile, e.g. for
// compression or encryption. It must have an inverse registered with
// [WithPersistenceAfterRead]; construction rejects hook pairs that don't
// round-trip, returning [ErrHookNotInvertible].
func WithPersistenceBeforeWrite(h func([]byte) ([]byte, error)) PersistenceOption {
	return domain.WithPersistenceBeforeWrite(h)
}

// WithPersistenceAfterRead sets the inverse of [WithPersistenceBeforeWrite],
// applied to every raw line read back from the datafile before it is
// deserialized.
func WithPersistenceAfterRead(h func([]byte) ([]byte, error)) PersistenceOption {
	return domain.WithPersistenceAfterRead(h)
}
