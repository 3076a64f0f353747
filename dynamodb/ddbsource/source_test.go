package ddbsource_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/dynamodb/ddbsource"
	"github.com/acksell/cachekey/dynamodb/ddbstore"
	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/acksell/cachekey/stampfmt"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idKey = table.PrimaryKeyDefinition{PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindN}}

var testTables = []table.TableDefinition{
	{Name: "stones", KeyDefinitions: idKey},
	{Name: "animals", KeyDefinitions: idKey, Timestamps: []string{"created_at", "updated_at"}},
	{Name: "parents", KeyDefinitions: idKey, Timestamps: []string{"created_at", "updated_at"}},
	{
		Name:           "children",
		KeyDefinitions: idKey,
		Timestamps:     []string{"created_at", "updated_at"},
		Touches:        []table.TouchDef{{ForeignKey: "parent_id", Parent: "parents"}},
	},
	{Name: "people", KeyDefinitions: idKey, Timestamps: []string{"created_at", "updated_at", "created_on", "updated_on"}},
}

// clock hands out strictly increasing instants.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	source *ddbsource.Source
	clock  *clock
	keys   *cachekey.CollectionKeyBuilder
}

func newFixture(t *testing.T) *fixture {
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, testTables...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	source, err := ddbsource.New(store, testTables, ddbsource.WithClock(c.now))
	require.NoError(t, err)

	formats := stampfmt.NewRegistry(stampfmt.Spec(stampfmt.Nsec), map[string]stampfmt.FormatSpec{
		"animals": stampfmt.Spec(stampfmt.Number),
	})
	return &fixture{
		source: source,
		clock:  c,
		keys:   cachekey.NewCollectionKeyBuilder(source, formats),
	}
}

func (f *fixture) create(t *testing.T, typeName string, id int, attrs map[string]types.AttributeValue) *ddbsource.Item {
	all := map[string]types.AttributeValue{"id": &types.AttributeValueMemberN{Value: fmt.Sprint(id)}}
	for k, v := range attrs {
		all[k] = v
	}
	item, err := f.source.NewItem(typeName, all)
	require.NoError(t, err)
	require.NoError(t, f.source.Save(context.Background(), item))
	return item
}

func (f *fixture) key(t *testing.T, typeName string, sources ...string) string {
	key, err := f.keys.Key(context.Background(), cachekey.CollectionRef{TypeName: typeName, Sources: sources})
	require.NoError(t, err)
	return key
}

func timeAV(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

var null = &types.AttributeValueMemberNULL{Value: true}

func TestSource_FieldExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.source.FieldExists(ctx, "people", "updated_on")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.source.FieldExists(ctx, "stones", "updated_at")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.source.FieldExists(ctx, "unicorns", "updated_at")
	assert.ErrorIs(t, err, ddbsource.ErrUnknownType)
}

func TestSource_CollectionKey(t *testing.T) {
	t.Run("type without timestamps", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "stones/all/0", f.key(t, "stones"))

		f.create(t, "stones", 1, nil)
		assert.Equal(t, "stones/all/1", f.key(t, "stones"))
	})

	t.Run("empty collection", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "parents/all/0", f.key(t, "parents"))
	})

	t.Run("max updated_at", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		f.create(t, "parents", 2, nil)
		// the second save happened at 00:00:02
		assert.Equal(t, "parents/all/2-20240101000002000000000", f.key(t, "parents"))
	})

	t.Run("all timestamps null", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		f.create(t, "parents", 2, nil)
		for _, id := range []string{"1", "2"} {
			item, err := f.source.Load(context.Background(), "parents", id)
			require.NoError(t, err)
			attrs := item.Attributes()
			attrs["updated_at"] = null
			put(t, f, "parents", attrs)
		}
		assert.Equal(t, "parents/all/2", f.key(t, "parents"))
	})

	t.Run("custom format", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "animals", 1, nil)
		assert.Equal(t, "animals/all/1-20240101000001", f.key(t, "animals"))
	})

	t.Run("multiple sources", func(t *testing.T) {
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		later := base.Add(time.Hour)

		tests := []struct {
			name      string
			updatedAt types.AttributeValue
			updatedOn types.AttributeValue
			sources   []string
			want      string
		}{
			{"updated_on only, asking updated_on", null, timeAV(base), []string{"updated_on"}, "people/all/1-20240301120000000000000"},
			{"updated_at only, asking updated_on", timeAV(base), null, []string{"updated_on"}, "people/all/1"},
			{"updated_on only, asking both", null, timeAV(base), []string{"updated_at", "updated_on"}, "people/all/1-20240301120000000000000"},
			{"newer updated_at", timeAV(later), timeAV(base), []string{"updated_at", "updated_on"}, "people/all/1-20240301130000000000000"},
			{"newer updated_on", timeAV(base), timeAV(later), []string{"updated_at", "updated_on"}, "people/all/1-20240301130000000000000"},
			{"newer updated_on reversed", timeAV(base), timeAV(later), []string{"updated_on", "updated_at"}, "people/all/1-20240301130000000000000"},
			{"blank source", timeAV(base), timeAV(later), []string{""}, "people/all/1"},
			{"nonexistent source", timeAV(base), timeAV(later), []string{"nonexistent_field"}, "people/all/1"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				put(t, f, "people", map[string]types.AttributeValue{
					"id":         &types.AttributeValueMemberN{Value: "1"},
					"updated_at": tt.updatedAt,
					"updated_on": tt.updatedOn,
				})
				assert.Equal(t, tt.want, f.key(t, "people", tt.sources...))
			})
		}
	})
}

func TestSource_TouchCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("self touched", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		before := f.key(t, "parents")

		require.NoError(t, f.source.Touch(ctx, "parents", "1", ""))
		assert.NotEqual(t, before, f.key(t, "parents"))
	})

	t.Run("child touched", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		f.create(t, "children", 1, map[string]types.AttributeValue{
			"parent_id": &types.AttributeValueMemberN{Value: "1"},
		})
		before := f.key(t, "parents")

		require.NoError(t, f.source.Touch(ctx, "children", "1", ""))
		after := f.key(t, "parents")
		assert.NotEqual(t, before, after)
		assert.Equal(t, "parents/all/1-20240101000003000000000", after)
	})

	t.Run("child saved", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		before := f.key(t, "parents")

		f.create(t, "children", 1, map[string]types.AttributeValue{
			"parent_id": &types.AttributeValueMemberN{Value: "1"},
		})
		assert.NotEqual(t, before, f.key(t, "parents"))
	})

	t.Run("child deleted", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "parents", 1, nil)
		f.create(t, "children", 1, map[string]types.AttributeValue{
			"parent_id": &types.AttributeValueMemberN{Value: "1"},
		})
		before := f.key(t, "parents")

		require.NoError(t, f.source.Delete(ctx, "children", "1"))
		assert.NotEqual(t, before, f.key(t, "parents"))
		assert.Equal(t, "children/all/0", f.key(t, "children"))
	})

	t.Run("orphan child", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "children", 1, map[string]types.AttributeValue{
			"parent_id": &types.AttributeValueMemberN{Value: "99"},
		})
		assert.Equal(t, "parents/all/0", f.key(t, "parents"))
	})

	t.Run("touch missing entity", func(t *testing.T) {
		f := newFixture(t)
		err := f.source.Touch(ctx, "parents", "1", "")
		assert.ErrorIs(t, err, ddbsource.ErrNotFound)
	})
}

func TestSource_EntityKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	keys := cachekey.NewEntityKeyBuilder(nil)

	item, err := f.source.NewItem("people", map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "people/new", keys.KeyWithoutTimestamp(item.CacheRef()))

	require.NoError(t, f.source.Save(ctx, item))
	assert.Equal(t, "people/5", keys.KeyWithoutTimestamp(item.CacheRef()))

	loaded, err := f.source.Load(ctx, "people", "5")
	require.NoError(t, err)

	got, err := keys.KeyFromAttributes(ctx, loaded, "updated_at")
	require.NoError(t, err)
	assert.Equal(t, "people/5-20240101000001000000000", got)

	// updated_on is declared but was never written
	got, err = keys.KeyFromAttributes(ctx, loaded, "updated_on")
	require.NoError(t, err)
	assert.Equal(t, "people/5", got)

	_, err = keys.KeyFromAttributes(ctx, loaded, "virtual_updated_at")
	assert.ErrorIs(t, err, cachekey.ErrUnknownAttribute)

	_, err = f.source.Load(ctx, "people", "6")
	assert.ErrorIs(t, err, ddbsource.ErrNotFound)
}

func TestSource_SaveKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.create(t, "parents", 1, nil)
	require.NoError(t, f.source.Save(ctx, item))

	created, err := item.ReadTimestamp(ctx, "created_at")
	require.NoError(t, err)
	updated, err := item.ReadTimestamp(ctx, "updated_at")
	require.NoError(t, err)
	assert.True(t, updated.After(*created))
}

func TestSource_UnixTimestamps(t *testing.T) {
	f := newFixture(t)
	put(t, f, "parents", map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberN{Value: "1"},
		"updated_at": &types.AttributeValueMemberN{Value: "1704067200"},
	})
	assert.Equal(t, "parents/all/1-20240101000000000000000", f.key(t, "parents"))
}

func TestSource_UnixTimestampsKeepNanoseconds(t *testing.T) {
	f := newFixture(t)
	put(t, f, "parents", map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberN{Value: "1"},
		"updated_at": &types.AttributeValueMemberN{Value: "1704067200.123456789"},
	})
	assert.Equal(t, "parents/all/1-20240101000000123456789", f.key(t, "parents"))
}

func TestSource_KeyAttributeIsNotATimestamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, "stones", 5, nil)

	ok, err := f.source.FieldExists(ctx, "stones", "id")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "stones/all/1", f.key(t, "stones", "id"))
}

func TestSource_TouchKeyAttribute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, "parents", 1, nil)

	err := f.source.Touch(ctx, "parents", "1", "id")
	assert.ErrorIs(t, err, cachekey.ErrUnknownAttribute)

	n, err := f.source.Count(ctx, "parents")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSource_Pagination(t *testing.T) {
	f := newFixture(t)
	paged := &pagingClient{limit: 2}
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, testTables...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	paged.Store = store

	source, err := ddbsource.New(paged, testTables, ddbsource.WithClock(f.clock.now))
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		item, err := source.NewItem("parents", map[string]types.AttributeValue{"id": &types.AttributeValueMemberN{Value: fmt.Sprint(i)}})
		require.NoError(t, err)
		require.NoError(t, source.Save(context.Background(), item))
	}

	keys := cachekey.NewCollectionKeyBuilder(source, nil)
	got, err := keys.Key(context.Background(), cachekey.CollectionRef{TypeName: "parents"})
	require.NoError(t, err)
	assert.Equal(t, "parents/all/5-20240101000005000000000", got)
	assert.Greater(t, paged.scans, 2)
}

func TestSource_ScanErrorPropagates(t *testing.T) {
	boom := errors.New("throughput exceeded")
	source, err := ddbsource.New(failingClient{err: boom}, testTables)
	require.NoError(t, err)

	_, err = cachekey.NewCollectionKeyBuilder(source, nil).Key(context.Background(), cachekey.CollectionRef{TypeName: "parents"})
	assert.ErrorIs(t, err, boom)
}

func TestNew_UndefinedParent(t *testing.T) {
	_, err := ddbsource.New(nil, []table.TableDefinition{{
		Name:           "children",
		KeyDefinitions: idKey,
		Touches:        []table.TouchDef{{ForeignKey: "parent_id", Parent: "parents"}},
	}})
	require.Error(t, err)
}

func TestNew_TouchedFieldMustBeATimestamp(t *testing.T) {
	tests := map[string]table.TouchDef{
		"key attribute":       {ForeignKey: "parent_id", Parent: "parents", Field: "id"},
		"undeclared field":    {ForeignKey: "parent_id", Parent: "parents", Field: "deleted_at"},
		"parent has no stamp": {ForeignKey: "stone_id", Parent: "stones"},
	}
	for name, touch := range tests {
		t.Run(name, func(t *testing.T) {
			defs := []table.TableDefinition{
				{Name: "stones", KeyDefinitions: idKey},
				{Name: "parents", KeyDefinitions: idKey, Timestamps: []string{"updated_at"}},
				{Name: "children", KeyDefinitions: idKey, Timestamps: []string{"updated_at"}, Touches: []table.TouchDef{touch}},
			}
			_, err := ddbsource.New(nil, defs)
			require.Error(t, err)
		})
	}
}

func put(t *testing.T, f *fixture, typeName string, attrs map[string]types.AttributeValue) {
	require.NoError(t, f.source.Replace(context.Background(), typeName, attrs))
}

// pagingClient forces small scan pages.
type pagingClient struct {
	*ddbstore.Store
	limit int32
	scans int
}

func (p *pagingClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	p.scans++
	in := *params
	in.Limit = &p.limit
	return p.Store.Scan(ctx, &in, optFns...)
}

type failingClient struct {
	*ddbstore.Store
	err error
}

func (f failingClient) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return nil, f.err
}
