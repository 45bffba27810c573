package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"presence-tracker-backend/internal/model"
)

// jobsPerWorker sizes the arrival queue relative to the pool.
const jobsPerWorker = 8

// Sender delivers one encrypted web push message.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

type webPushSender struct{}

func (webPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool tells the subscribers of a member that the member has arrived.
// Arrivals are queued by member id and fanned out by a fixed set of workers.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	wg      sync.WaitGroup
}

func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*jobsPerWorker),
		db:      db,
		webpush: webpushOptions,
		sender:  webPushSender{},
	}
}

// Start runs the workers until ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.wg.Add(wp.size)
	for i := 0; i < wp.size; i++ {
		go func(n int) {
			defer wp.wg.Done()
			wp.run(ctx, n)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) run(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Push worker %d stopped", n)
			return
		case memberID := <-wp.jobs:
			wp.announce(ctx, memberID)
		}
	}
}

// Dispatch queues an arrival, blocking while the queue is full.
func (wp *WorkerPool) Dispatch(memberID string) {
	wp.jobs <- memberID
}

// NotifyCheckIn queues an arrival and drops it if the queue is full, so a
// slow push service never holds up a scan.
func (wp *WorkerPool) NotifyCheckIn(memberID string) {
	select {
	case wp.jobs <- memberID:
	default:
		log.Printf("Push queue full, arrival of %s not announced", memberID)
	}
}

func (wp *WorkerPool) announce(ctx context.Context, memberID string) {
	subs, err := wp.subscribersOf(ctx, memberID)
	if err != nil {
		log.Printf("Could not load subscribers of %s: %v", memberID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := []byte(fmt.Sprintf("%s is in the erg room!", wp.displayName(ctx, memberID)))
	log.Printf("Announcing arrival of %s to %d subscribers", memberID, len(subs))
	for _, sub := range subs {
		wp.deliver(ctx, sub, payload)
	}
}

func (wp *WorkerPool) subscribersOf(ctx context.Context, memberID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_member_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.member_id = ?", memberID).
		Find(&subs).Error
	return subs, err
}

// displayName falls back to the tag id when the member has no usable name.
func (wp *WorkerPool) displayName(ctx context.Context, memberID string) string {
	var member model.Member
	err := wp.db.WithContext(ctx).Select("name").Where("id = ?", memberID).First(&member).Error
	if err != nil {
		log.Printf("Could not look up name of %s: %v", memberID, err)
		return memberID
	}
	if member.Name == "" {
		return memberID
	}
	return member.Name
}

func (wp *WorkerPool) deliver(ctx context.Context, sub model.PushSubscription, payload []byte) {
	resp, err := wp.sender.Send(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256DH, Auth: sub.Auth},
	}, wp.webpush)
	if err != nil {
		log.Printf("Push to %s failed: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGone {
		return
	}
	log.Printf("Push endpoint %s is gone, removing subscription", sub.Endpoint)
	if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
		log.Printf("Could not remove subscription %s: %v", sub.Endpoint, err)
	}
}
