package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushed []*models.Notification
}

func (p *recordingPusher) Push(userId string, n *models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

func setupRelayTest(t *testing.T) (*Relay, *store.Bus, *recordingPusher, func()) {
	t.Helper()

	bus := store.NewBus()
	pusher := &recordingPusher{}
	relay := NewRelay(bus, "admin1", pusher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	cleanup := func() {
		cancel()
		bus.Close()
		<-done
	}
	return relay, bus, pusher, cleanup
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestRelay_SignupGoesToAdmin(t *testing.T) {
	relay, bus, pusher, cleanup := setupRelayTest(t)
	defer cleanup()

	bus.Publish(store.ChangeEvent{
		Table:  store.TableUsers,
		Op:     store.OpInsert,
		Fields: map[string]string{"id": "user1", "email": "new@example.com"},
	})

	waitFor(t, func() bool { return pusher.count() == 1 })

	list := relay.List("admin1")
	if len(list) != 1 {
		t.Fatalf("Expected 1 admin notification, got %d", len(list))
	}
	if list[0].Type != TypeSignup {
		t.Errorf("Expected signup type, got %s", list[0].Type)
	}
	if len(relay.List("user1")) != 0 {
		t.Error("Expected no notification for the user on signup")
	}
}

func TestRelay_VerificationRouting(t *testing.T) {
	relay, bus, _, cleanup := setupRelayTest(t)
	defer cleanup()

	// Pending insert goes to the admin; code_sent update goes to the user.
	bus.Publish(store.ChangeEvent{
		Table: store.TableVerificationRequests,
		Op:    store.OpInsert,
		Fields: map[string]string{
			"id": "v1", "user_id": "user1",
			"status": models.VerificationPending, "bank_name": "Shinhan",
		},
	})
	bus.Publish(store.ChangeEvent{
		Table: store.TableVerificationRequests,
		Op:    store.OpUpdate,
		Fields: map[string]string{
			"id": "v1", "user_id": "user1",
			"status": models.VerificationCodeSent,
		},
	})
	bus.Publish(store.ChangeEvent{
		Table: store.TableVerificationRequests,
		Op:    store.OpUpdate,
		Fields: map[string]string{
			"id": "v1", "user_id": "user1",
			"status": models.VerificationVerified,
		},
	})

	waitFor(t, func() bool { return len(relay.List("user1")) == 2 })

	adminList := relay.List("admin1")
	if len(adminList) != 1 || adminList[0].Type != TypeVerificationRequest {
		t.Errorf("Expected one verification_request for admin, got %+v", adminList)
	}

	userList := relay.List("user1")
	// Newest first.
	if userList[0].Type != TypeVerificationApproved || userList[1].Type != TypeVerificationCodeSent {
		t.Errorf("Unexpected user notification order: %s, %s", userList[0].Type, userList[1].Type)
	}
}

func TestRelay_PurchaseCompletedOnDeposit(t *testing.T) {
	relay, bus, _, cleanup := setupRelayTest(t)
	defer cleanup()

	bus.Publish(store.ChangeEvent{
		Table: store.TableTransactions,
		Op:    store.OpInsert,
		Fields: map[string]string{
			"user_id": "user1", "tx_type": models.TxTypeDeposit,
			"reference_id": "req-1", "amount": "100", "coin_type": "USDT",
		},
	})
	// Deposits without a reference are not purchase completions.
	bus.Publish(store.ChangeEvent{
		Table: store.TableTransactions,
		Op:    store.OpInsert,
		Fields: map[string]string{
			"user_id": "user1", "tx_type": models.TxTypeDeposit,
			"reference_id": "", "amount": "5", "coin_type": "USDT",
		},
	})

	waitFor(t, func() bool { return len(relay.List("user1")) == 1 })

	list := relay.List("user1")
	if list[0].Type != TypePurchaseCompleted {
		t.Errorf("Expected purchase_completed, got %s", list[0].Type)
	}
}

func TestRelay_ReadAndDelete(t *testing.T) {
	relay, bus, _, cleanup := setupRelayTest(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		bus.Publish(store.ChangeEvent{
			Table: store.TablePurchaseRequests,
			Op:    store.OpUpdate,
			Fields: map[string]string{
				"id": fmt.Sprintf("p%d", i), "user_id": "user1",
				"status": models.PurchaseApproved, "amount": "10", "coin_type": "USDT",
			},
		})
	}
	waitFor(t, func() bool { return len(relay.List("user1")) == 3 })

	if got := relay.UnreadCount("user1"); got != 3 {
		t.Errorf("Expected 3 unread, got %d", got)
	}

	first := relay.List("user1")[0]
	if !relay.MarkRead("user1", first.Id) {
		t.Error("MarkRead returned false for existing notification")
	}
	if got := relay.UnreadCount("user1"); got != 2 {
		t.Errorf("Expected 2 unread after MarkRead, got %d", got)
	}

	if !relay.Delete("user1", first.Id) {
		t.Error("Delete returned false for existing notification")
	}
	if len(relay.List("user1")) != 2 {
		t.Errorf("Expected 2 after delete, got %d", len(relay.List("user1")))
	}

	relay.MarkAllRead("user1")
	if got := relay.UnreadCount("user1"); got != 0 {
		t.Errorf("Expected 0 unread after MarkAllRead, got %d", got)
	}

	relay.Clear("user1")
	if len(relay.List("user1")) != 0 {
		t.Error("Expected empty list after Clear")
	}
}

func TestRelay_CapsPerRecipient(t *testing.T) {
	relay, _, _, cleanup := setupRelayTest(t)
	defer cleanup()

	// Deliver directly to avoid racing the bus buffer.
	for i := 0; i < maxPerRecipient+20; i++ {
		relay.deliver("user1", TypePurchaseApproved, "Purchase approved",
			fmt.Sprintf("approval %d", i), nil)
	}

	list := relay.List("user1")
	if len(list) != maxPerRecipient {
		t.Fatalf("Expected %d retained, got %d", maxPerRecipient, len(list))
	}
	// Newest first: the most recent delivery leads the list and the oldest
	// surviving entry closes it.
	if list[0].Message != fmt.Sprintf("approval %d", maxPerRecipient+19) {
		t.Errorf("Unexpected newest message %q", list[0].Message)
	}
	if list[len(list)-1].Message != "approval 20" {
		t.Errorf("Unexpected oldest message %q", list[len(list)-1].Message)
	}
}
