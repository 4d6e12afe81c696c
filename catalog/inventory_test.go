package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/storefront-kit/storefront/event"
)

func inventoryEvent(t *testing.T, update InventoryUpdate) event.Event {
	t.Helper()
	ev, err := event.New(event.KindInventoryUpdate, update)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ev
}

func TestHandleEventUpdatesInventory(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	ev := inventoryEvent(t, InventoryUpdate{ProductID: product.ID, OldCount: 10, NewCount: 3})
	if err := svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if got.InventoryCount != 3 {
		t.Fatalf("InventoryCount = %d, want 3", got.InventoryCount)
	}
	// The handler drops the cached entry, so this read went to the store.
	if store.getCount() != 1 {
		t.Fatalf("store hit %d times, want 1", store.getCount())
	}
}

func TestHandleEventIdempotentRedelivery(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	ev := inventoryEvent(t, InventoryUpdate{ProductID: product.ID, OldCount: 10, NewCount: 7})
	for i := 0; i < 2; i++ {
		if err := svc.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent() delivery %d error = %v", i+1, err)
		}
	}

	got, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if got.InventoryCount != 7 {
		t.Fatalf("InventoryCount = %d, want 7", got.InventoryCount)
	}
}

func TestHandleEventDiscards(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   event.Event
	}{
		{"wrong kind", event.Event{Kind: event.KindProductCreated}},
		{"missing payload", event.Event{Kind: event.KindInventoryUpdate}},
		{"malformed payload", event.Event{Kind: event.KindInventoryUpdate, Data: json.RawMessage(`"nope"`)}},
		{"missing product id", inventoryEvent(t, InventoryUpdate{NewCount: 1})},
		{"negative count", inventoryEvent(t, InventoryUpdate{ProductID: product.ID, NewCount: -1})},
		{"vanished product", inventoryEvent(t, InventoryUpdate{ProductID: "gone", NewCount: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.HandleEvent(ctx, tt.ev); !errors.Is(err, event.ErrDiscard) {
				t.Fatalf("HandleEvent() error = %v, want ErrDiscard", err)
			}
		})
	}
}

func TestHandleEventStoreFailureRequeues(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	store.failing = true

	ev := inventoryEvent(t, InventoryUpdate{ProductID: product.ID, NewCount: 1})
	err := svc.HandleEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("HandleEvent() with failing store = nil, want error")
	}
	if errors.Is(err, event.ErrDiscard) {
		t.Fatal("store failure classified as discard; message would be lost")
	}
}
