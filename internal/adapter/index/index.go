// Package index contains the default [domain.Index] implementation, an
// ordered multimap over one (possibly composite) dotted field of a
// document collection, backed by a generic B-tree.
package index

import (
	"context"
	"maps"
	"slices"

	"github.com/tidwall/btree"

	"github.com/go-embedb/embedb/domain"
	"github.com/go-embedb/embedb/internal/adapter/comparer"
	"github.com/go-embedb/embedb/internal/adapter/data"
	"github.com/go-embedb/embedb/internal/adapter/fieldnavigator"
	"github.com/go-embedb/embedb/internal/adapter/hasher"
	"github.com/go-embedb/embedb/pkg/uncomparablemap"
)

// entry is one (key, document) pair stored as a leaf of the backing tree.
// Entries are ordered by Key first and by the owning document's _id second,
// so every document sharing a key occupies an adjacent run instead of
// overwriting one another — this is what lets the tree serve as an ordered
// multimap rather than a plain ordered map.
type entry struct {
	Key any
	ID  string
	Doc domain.Document
}

// Index implements [domain.Index].
type Index struct {
	fieldName string
	_fields   []string
	unique    bool
	sparse    bool

	// Tree is exported to allow testing. Should not be a problem because
	// Index is used as an interface.
	Tree           *btree.BTreeG[entry]
	comparer       domain.Comparer
	hasher         domain.Hasher
	fieldNavigator domain.FieldNavigator
}

// FieldName implements domain.Index.
func (i *Index) FieldName() string { return i.fieldName }

// Sparse implements domain.Index.
func (i *Index) Sparse() bool { return i.sparse }

// Unique implements domain.Index.
func (i *Index) Unique() bool { return i.unique }

// NewIndex returns a new implementation of [domain.Index].
func NewIndex(options ...domain.IndexOption) (domain.Index, error) {
	docFac := data.NewDocument
	opts := domain.IndexOptions{
		FieldName:       "",
		Unique:          false,
		Sparse:          false,
		ExpireAfter:     0,
		DocumentFactory: docFac,
		Comparer:        comparer.NewComparer(),
		Hasher:          hasher.NewHasher(),
		FieldNavigator:  fieldnavigator.NewFieldNavigator(docFac),
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Comparer == nil {
		opts.Comparer = comparer.NewComparer()
	}
	if opts.DocumentFactory == nil {
		opts.DocumentFactory = data.NewDocument
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewHasher()
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}

	fields, err := opts.FieldNavigator.SplitFields(opts.FieldName)
	if err != nil {
		return nil, err
	}

	i := &Index{
		fieldName:      opts.FieldName,
		_fields:        fields,
		unique:         opts.Unique,
		sparse:         opts.Sparse,
		comparer:       opts.Comparer,
		hasher:         opts.Hasher,
		fieldNavigator: opts.FieldNavigator,
	}
	i.Tree = btree.NewBTreeG(i.less)
	return i, nil
}

func (i *Index) less(a, b entry) bool {
	c := i.compareThings(a.Key, b.Key)
	if c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Reset implements domain.Index.
func (i *Index) Reset(ctx context.Context, newData ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	i.Tree = btree.NewBTreeG(i.less)
	return i.Insert(ctx, newData...)
}

func (i *Index) getKeys(doc domain.Document) ([]any, error) {
	// When a dotted field path references multiple array elements, each
	// element is treated as an individual key and inserted separately into
	// the index.
	if len(i._fields) != 1 {
		var containsKey bool
		k := make(data.M)
		for _, field := range i._fields {
			addr, err := i.fieldNavigator.GetAddress(field)
			if err != nil {
				return nil, err
			}

			key, _, err := i.fieldNavigator.GetField(doc, addr...)
			if err != nil {
				return nil, err
			}

			k[field] = nil
			values := make([]any, len(key))
			ok := false
			for n, v := range key {
				value, isSet := v.Get()
				if isSet && !ok {
					ok = true
				}
				values[n] = value
			}

			if ok { // if undefined, treat as nil
				k[field] = values[0]
			}

			containsKey = containsKey || k[field] != nil
		}
		if i.sparse && !containsKey {
			return nil, nil
		}
		return []any{k}, nil
	}

	addr, err := i.fieldNavigator.GetAddress(i._fields[0])
	if err != nil {
		return nil, err
	}

	fieldValues, _, err := i.fieldNavigator.GetField(doc, addr...)
	if err != nil {
		return nil, err
	}

	keysAlt := make([]any, len(fieldValues))
	ok := false
	for n, fieldValue := range fieldValues {
		keyAlt, isSet := fieldValue.Get()
		if isSet && !ok {
			ok = true
		}
		keysAlt[n] = keyAlt
	}

	if i.sparse && !ok {
		return nil, nil
	}

	if len(keysAlt) == 0 {
		return []any{nil}, nil
	}

	if l, ok := keysAlt[0].([]any); ok {
		return l, nil
	}

	return keysAlt, nil
}

// hasConflict reports whether inserting under key would violate a unique
// constraint, i.e. some document already occupies that key.
func (i *Index) hasConflict(key any) bool {
	if !i.unique {
		return false
	}
	conflict := false
	i.Tree.Ascend(entry{Key: key}, func(e entry) bool {
		conflict = i.compareThings(e.Key, key) == 0
		return false
	})
	return conflict
}

// Insert implements domain.Index.
func (i *Index) Insert(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	inserted := make([]entry, 0, len(docs))

	var err error
DocInsertion:
	for _, d := range docs {
		var l []any
		l, err = i.getKeys(d)
		if err != nil {
			break
		}

		slices.SortFunc(l, i.compareThings)
		l = slices.CompactFunc(l, func(a, b any) bool { return i.compareThings(a, b) == 0 })

		for _, k := range l {
			if i.hasConflict(k) {
				err = domain.ErrUniqueViolated{FieldName: i.fieldName, Key: k}
				break DocInsertion
			}
			e := entry{Key: k, ID: d.ID().(string), Doc: d}
			i.Tree.Set(e)
			inserted = append(inserted, e)
		}
	}

	if err != nil {
		for _, e := range inserted {
			i.Tree.Delete(e)
		}
		return err
	}
	return nil
}

// Remove implements domain.Index.
func (i *Index) Remove(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, d := range docs {
		keys, err := i.getKeys(d)
		if err != nil {
			return nil
		}
		for _, k := range keys {
			i.Tree.Delete(entry{Key: k, ID: d.ID().(string)})
		}
	}

	return nil
}

// Update implements domain.Index.
func (i *Index) Update(ctx context.Context, oldDoc, newDoc domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := i.Remove(ctx, oldDoc); err != nil {
		return err
	}
	if err := i.Insert(ctx, newDoc); err != nil {
		_ = i.Insert(context.WithoutCancel(context.Background()), oldDoc)
		return err
	}
	return nil
}

// UpdateMultipleDocs implements domain.Index.
func (i *Index) UpdateMultipleDocs(ctx context.Context, pairs ...domain.Update) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var failingIndex int
	var err error

	subCtx := context.WithoutCancel(ctx)
	for _, pair := range pairs {
		_ = i.Remove(subCtx, pair.OldDoc)
	}

Loop:
	for n, pair := range pairs {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			failingIndex = n
			break Loop
		default:
		}

		if err = i.Insert(ctx, pair.NewDoc); err != nil {
			failingIndex = n
			break
		}
	}

	if err != nil {
		for n := range failingIndex {
			_ = i.Remove(ctx, pairs[n].NewDoc)
		}
		for _, pair := range pairs {
			_ = i.Insert(ctx, pair.OldDoc)
		}
	}

	return err
}

// RevertUpdate implements domain.Index.
func (i *Index) RevertUpdate(ctx context.Context, oldDoc, newDoc domain.Document) error {
	return i.Update(ctx, newDoc, oldDoc)
}

// RevertMultipleUpdates implements domain.Index.
func (i *Index) RevertMultipleUpdates(ctx context.Context, pairs ...domain.Update) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	revert := make([]domain.Update, len(pairs))
	for n, pair := range pairs {
		revert[n] = domain.Update{OldDoc: pair.NewDoc, NewDoc: pair.OldDoc}
	}
	return i.UpdateMultipleDocs(ctx, revert...)
}

// GetMatching implements domain.Index.
func (i *Index) GetMatching(value ...any) ([]domain.Document, error) {
	res := []domain.Document{}
	_res := uncomparablemap.New[[]domain.Document](i.hasher, i.comparer)
	for _, v := range value {
		var found []domain.Document
		i.Tree.Ascend(entry{Key: v}, func(e entry) bool {
			if i.compareThings(e.Key, v) != 0 {
				return false
			}
			found = append(found, e.Doc)
			return true
		})
		if len(found) == 0 {
			continue
		}
		if err := _res.Set(found[0].ID(), found); err != nil {
			return nil, err
		}
	}
	keys := slices.Collect(_res.Keys())
	var err error
	slices.SortFunc(keys, func(a, b any) int {
		if err != nil {
			return 0
		}
		comp, compErr := i.comparer.Compare(a, b)
		if compErr != nil {
			err = compErr
		}
		return comp
	})
	if err != nil {
		return nil, err
	}
	for _, id := range keys {
		v, _, err := _res.Get(id)
		if err != nil {
			return nil, err
		}
		res = append(res, v...)
	}
	return res, nil
}

// GetBetweenBounds implements domain.Index.
func (i *Index) GetBetweenBounds(ctx context.Context, query domain.Document) ([]domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m := maps.Collect(query.Iter())

	var (
		lower, upper             any
		hasLower, hasUpper       bool
		lowerStrict, upperStrict bool
	)
	if v, ok := m["$gte"]; ok {
		lower, hasLower = v, true
	}
	if v, ok := m["$gt"]; ok {
		lower, hasLower, lowerStrict = v, true, true
	}
	if v, ok := m["$lte"]; ok {
		upper, hasUpper = v, true
	}
	if v, ok := m["$lt"]; ok {
		upper, hasUpper, upperStrict = v, true, true
	}

	var pivot entry
	if hasLower {
		pivot = entry{Key: lower}
	}

	var res []domain.Document
	i.Tree.Ascend(pivot, func(e entry) bool {
		if hasLower && lowerStrict && i.compareThings(e.Key, lower) == 0 {
			return true
		}
		if hasUpper {
			c := i.compareThings(e.Key, upper)
			if c > 0 || (upperStrict && c == 0) {
				return false
			}
		}
		res = append(res, e.Doc)
		return true
	})
	return res, nil
}

// GetAll implements domain.Index.
func (i *Index) GetAll() []domain.Document {
	var res []domain.Document
	i.Tree.Scan(func(e entry) bool {
		res = append(res, e.Doc)
		return true
	})
	return res
}

// GetNumberOfKeys implements domain.Index.
func (i *Index) GetNumberOfKeys() int {
	count := 0
	first := true
	var last any
	i.Tree.Scan(func(e entry) bool {
		if first || i.compareThings(last, e.Key) != 0 {
			count++
			last = e.Key
			first = false
		}
		return true
	})
	return count
}

func (i *Index) compareThings(a any, b any) int {
	comp, _ := i.comparer.Compare(a, b)
	return comp
}
