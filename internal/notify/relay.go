package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification types, derived from table + operation + new status.
const (
	TypeSignup                = "signup"
	TypeVerificationRequest   = "verification_request"
	TypeVerificationCodeSent  = "verification_code_sent"
	TypeVerificationApproved  = "verification_approved"
	TypeVerificationRejected  = "verification_rejected"
	TypePurchaseRequest       = "purchase_request"
	TypePurchaseApproved      = "purchase_approved"
	TypePurchaseRejected      = "purchase_rejected"
	TypePurchaseCompleted     = "purchase_completed"
)

// maxPerRecipient caps retained notifications per recipient; oldest dropped.
const maxPerRecipient = 100

// Pusher delivers a notification to a connected client. Satisfied by Hub.
type Pusher interface {
	Push(userId string, n *models.Notification)
}

// Feed is the change-event source. Satisfied by the ledger store.
type Feed interface {
	Subscribe(table string, ops []store.Op, filter map[string]string) *store.Subscription
}

// Relay observes ledger change events and fans them out as notifications:
// the admin recipient sees pending-state inserts, a user sees updates to
// their own rows. Read and delete are local client-state operations.
type Relay struct {
	adminId string
	pusher  Pusher

	mu     sync.Mutex
	byUser map[string][]*models.Notification

	sub *store.Subscription
}

func NewRelay(feed Feed, adminId string, pusher Pusher) *Relay {
	return &Relay{
		adminId: adminId,
		pusher:  pusher,
		byUser:  make(map[string][]*models.Notification),
		sub:     feed.Subscribe("", nil, nil),
	}
}

// Run consumes change events until the context is cancelled or the feed
// closes.
func (r *Relay) Run(ctx context.Context) {
	zap.L().Info("Notification relay started", zap.String("admin_id", r.adminId))
	for {
		select {
		case <-ctx.Done():
			r.sub.Cancel()
			return
		case ev, ok := <-r.sub.C:
			if !ok {
				return
			}
			r.handle(ev)
		}
	}
}

func (r *Relay) handle(ev store.ChangeEvent) {
	switch ev.Table {
	case store.TableUsers:
		if ev.Op == store.OpInsert {
			r.deliver(r.adminId, TypeSignup, "New signup",
				fmt.Sprintf("%s signed up", ev.Fields["email"]), ev.Fields)
		}
	case store.TableVerificationRequests:
		r.handleVerification(ev)
	case store.TablePurchaseRequests:
		r.handlePurchase(ev)
	case store.TableTransactions:
		if ev.Op == store.OpInsert && ev.Fields["tx_type"] == models.TxTypeDeposit && ev.Fields["reference_id"] != "" {
			r.deliver(ev.Fields["user_id"], TypePurchaseCompleted, "Purchase completed",
				fmt.Sprintf("%s %s credited to your wallet", ev.Fields["amount"], ev.Fields["coin_type"]), ev.Fields)
		}
	}
}

func (r *Relay) handleVerification(ev store.ChangeEvent) {
	status := ev.Fields["status"]
	switch {
	case ev.Op == store.OpInsert && status == models.VerificationPending:
		r.deliver(r.adminId, TypeVerificationRequest, "New verification request",
			fmt.Sprintf("Account verification requested (%s)", ev.Fields["bank_name"]), ev.Fields)
	case ev.Op == store.OpUpdate && status == models.VerificationCodeSent:
		r.deliver(ev.Fields["user_id"], TypeVerificationCodeSent, "Verification code sent",
			"Check your bank account for a 1-unit deposit and enter the depositor name", ev.Fields)
	case ev.Op == store.OpUpdate && status == models.VerificationCodeSubmitted:
		r.deliver(r.adminId, TypeVerificationRequest, "Verification code submitted",
			"A user submitted their verification code for review", ev.Fields)
	case ev.Op == store.OpUpdate && status == models.VerificationVerified:
		r.deliver(ev.Fields["user_id"], TypeVerificationApproved, "Account verified",
			"Your account is verified and wallets have been created", ev.Fields)
	case ev.Op == store.OpUpdate && status == models.VerificationRejected:
		r.deliver(ev.Fields["user_id"], TypeVerificationRejected, "Verification rejected",
			ev.Fields["rejection_reason"], ev.Fields)
	}
}

func (r *Relay) handlePurchase(ev store.ChangeEvent) {
	status := ev.Fields["status"]
	switch {
	case ev.Op == store.OpInsert && status == models.PurchasePending:
		r.deliver(r.adminId, TypePurchaseRequest, "New purchase request",
			fmt.Sprintf("%s %s requested", ev.Fields["amount"], ev.Fields["coin_type"]), ev.Fields)
	case ev.Op == store.OpUpdate && status == models.PurchaseApproved:
		r.deliver(ev.Fields["user_id"], TypePurchaseApproved, "Purchase approved",
			fmt.Sprintf("Your %s %s purchase was approved", ev.Fields["amount"], ev.Fields["coin_type"]), ev.Fields)
	case ev.Op == store.OpUpdate && status == models.PurchaseRejected:
		r.deliver(ev.Fields["user_id"], TypePurchaseRejected, "Purchase rejected",
			ev.Fields["admin_note"], ev.Fields)
	}
}

func (r *Relay) deliver(recipient, notifType, title, message string, data map[string]string) {
	if recipient == "" {
		return
	}

	n := &models.Notification{
		Id:        uuid.New().String(),
		UserId:    recipient,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	list := append(r.byUser[recipient], n)
	if len(list) > maxPerRecipient {
		list = list[len(list)-maxPerRecipient:]
	}
	r.byUser[recipient] = list
	r.mu.Unlock()

	if r.pusher != nil {
		r.pusher.Push(recipient, n)
	}

	zap.L().Debug("Notification delivered",
		zap.String("recipient", recipient),
		zap.String("type", notifType))
}

// List returns the recipient's notifications, newest first.
func (r *Relay) List(recipient string) []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byUser[recipient]
	out := make([]*models.Notification, len(list))
	for i, n := range list {
		out[len(list)-1-i] = n
	}
	return out
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (r *Relay) UnreadCount(recipient string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.byUser[recipient] {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead flags one notification as read.
func (r *Relay) MarkRead(recipient, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.byUser[recipient] {
		if n.Id == id {
			n.Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification for the recipient as read.
func (r *Relay) MarkAllRead(recipient string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.byUser[recipient] {
		n.Read = true
	}
}

// Delete removes one notification.
func (r *Relay) Delete(recipient, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byUser[recipient]
	for i, n := range list {
		if n.Id == id {
			r.byUser[recipient] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes all of the recipient's notifications.
func (r *Relay) Clear(recipient string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUser, recipient)
}
