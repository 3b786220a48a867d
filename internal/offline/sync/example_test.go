package sync_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/remote/remotetest"
	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/offline/sync"
)

// This example queues an offline create and drains it against an
// in-memory server.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "daycast-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := db.Open(filepath.Join(dir, "daycast.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	q := queue.New(store, dir)
	c := cache.New(store)

	item := schema.Item{
		ID:        schema.NewTempID(),
		Type:      schema.ItemText,
		Content:   "Buy milk",
		Date:      "2025-01-10",
		CreatedAt: "2025-01-10T08:00:00.000000Z",
		UpdatedAt: "2025-01-10T08:00:00.000000Z",
	}
	c.InsertLocalItem(ctx, item)
	if err := q.EnqueueCreate(ctx, item); err != nil {
		log.Fatal(err)
	}

	processor := sync.New(remotetest.New(), q, c, nil)
	result, err := processor.ProcessQueue(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Applied, result.Remaining)
	// Output: 1 0
}
