package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

func TestNotifyQueuesAndDrains(t *testing.T) {
	buf := &bytes.Buffer{}
	svc, err := NewService(kv.NewMemoryStore("sf"), logger.New(logger.Options{ServiceName: "test", Output: buf}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	svc.Notify(ctx, "s1", Warning("shipping_fallback", "using estimated shipping"))
	svc.Notify(ctx, "s1", Success("order_created", "order PK-1 created"))
	svc.Notify(ctx, "s2", Error("payment_failed", "declined"))

	got, err := svc.Drain(ctx, "s1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 2 || got[0].Code != "shipping_fallback" || got[1].Level != enums.NotificationLevelSuccess {
		t.Fatalf("unexpected queue %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled, got %+v", got[0])
	}

	again, err := svc.Drain(ctx, "s1")
	if err != nil || len(again) != 0 {
		t.Fatalf("expected empty queue after drain, got %+v %v", again, err)
	}

	if !strings.Contains(buf.String(), `"notification_code":"payment_failed"`) {
		t.Fatalf("expected notification to be logged, got %s", buf.String())
	}
}

func TestNotifyCapsQueue(t *testing.T) {
	svc, _ := NewService(kv.NewMemoryStore("sf"), logger.Nop())
	ctx := context.Background()
	for i := 0; i < maxQueued+10; i++ {
		svc.Notify(ctx, "s1", Notification{Code: "n", Message: "m"})
	}
	got, _ := svc.Drain(ctx, "s1")
	if len(got) != maxQueued {
		t.Fatalf("expected %d queued, got %d", maxQueued, len(got))
	}
}
