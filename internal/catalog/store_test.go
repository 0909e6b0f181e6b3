package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t *testing.T, documents ...Document) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(_ *testing.T, documents ...Document) Store {
				return NewMemoryStore(documents...)
			},
		},
		{
			name: "gorm",
			open: func(t *testing.T, documents ...Document) Store {
				return newSeededGormStore(t, documents...)
			},
		},
	}
}

func documentIDs(documents []Document) []string {
	ids := make([]string, 0, len(documents))
	for _, document := range documents {
		ids = append(ids, document.ID)
	}
	return ids
}

func TestStoreGetReturnsNotFound(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)
			_, err := store.Get(context.Background(), "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreBindIsOneShot(t *testing.T) {
	ctx := context.Background()
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)

			bound, err := store.Bind(ctx, "2", "DEV-AAAA")
			require.NoError(t, err)
			boundDevice, ok := bound.Binding.Device()
			require.True(t, ok)
			assert.Equal(t, "DEV-AAAA", boundDevice.String())

			again, err := store.Bind(ctx, "2", "DEV-AAAA")
			require.NoError(t, err)
			assert.Equal(t, bound, again)

			_, err = store.Bind(ctx, "2", "DEV-BBBB")
			require.ErrorIs(t, err, ErrAlreadyBound)
			var boundErr *AlreadyBoundError
			require.True(t, errors.As(err, &boundErr))
			assert.Equal(t, "DEV-AAAA", boundErr.Bound.String())
			assert.Equal(t, "DEV-BBBB", boundErr.Requested.String())

			stored, err := store.Get(ctx, "2")
			require.NoError(t, err)
			assert.Equal(t, bound, stored)
		})
	}
}

func TestStoreBindMissingDocument(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)
			_, err := store.Bind(context.Background(), "missing", "DEV-AAAA")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreConcurrentBindHasSingleWinner(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)
			devices := []device.ID{"DEV-A1", "DEV-B2", "DEV-C3", "DEV-D4", "DEV-E5", "DEV-F6"}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				winners   []device.ID
				conflicts int
			)
			for _, candidate := range devices {
				wg.Add(1)
				go func(id device.ID) {
					defer wg.Done()
					_, err := store.Bind(context.Background(), "3", id)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						winners = append(winners, id)
					case errors.Is(err, ErrAlreadyBound):
						conflicts++
					default:
						t.Errorf("unexpected bind error: %v", err)
					}
				}(candidate)
			}
			wg.Wait()

			require.Len(t, winners, 1)
			assert.Equal(t, len(devices)-1, conflicts)
			stored, err := store.Get(context.Background(), "3")
			require.NoError(t, err)
			bound, _ := stored.Binding.Device()
			assert.Equal(t, winners[0], bound)
		})
	}
}

func TestStoreInsertListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)

			published := Document{
				ID:         "new-1",
				Title:      "Vật Lý Đại Cương",
				Price:      30,
				AuthorName: "Member",
				DocType:    DocTypeBook,
				Tags:       []string{"#VatLy"},
				Binding:    BoundTo("DEV-AAAA"),
			}
			require.NoError(t, store.Insert(ctx, published))
			require.ErrorIs(t, store.Insert(ctx, published), ErrDuplicateID)

			listed, err := Collect(store.List(ctx, Filter{}))
			require.NoError(t, err)
			assert.Equal(t, []string{"new-1", "1", "2", "3"}, documentIDs(listed))

			stored, err := store.Get(ctx, "new-1")
			require.NoError(t, err)
			assert.Equal(t, published, stored)
		})
	}
}

func TestStoreListFiltersAndRestarts(t *testing.T) {
	ctx := context.Background()
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)

			byType, err := Collect(store.List(ctx, Filter{DocType: DocTypeExam}))
			require.NoError(t, err)
			assert.Equal(t, []string{"2"}, documentIDs(byType))

			byTag, err := Collect(store.List(ctx, Filter{Query: "ppt"}))
			require.NoError(t, err)
			assert.Equal(t, []string{"3"}, documentIDs(byTag))

			library, err := Collect(store.List(ctx, Filter{IDs: []string{"3", "1"}}))
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "3"}, documentIDs(library))

			emptyLibrary, err := Collect(store.List(ctx, Filter{IDs: []string{}}))
			require.NoError(t, err)
			assert.Empty(t, emptyLibrary)

			sequence := store.List(ctx, Filter{})
			first, err := Collect(sequence)
			require.NoError(t, err)
			_, err = store.Bind(ctx, "1", "DEV-AAAA")
			require.NoError(t, err)
			second, err := Collect(sequence)
			require.NoError(t, err)
			require.Len(t, second, len(first))
			assert.False(t, first[0].Binding.IsBound())
			assert.True(t, second[0].Binding.IsBound())
		})
	}
}

func TestStoreListStopsEarly(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t, sampleDocuments()...)
			seen := 0
			for _, err := range store.List(context.Background(), Filter{}) {
				require.NoError(t, err)
				seen++
				if seen == 2 {
					break
				}
			}
			assert.Equal(t, 2, seen)
		})
	}
}
