// Package push delivers Web Push notifications to recipients who have no live
// WebSocket subscription for the affected chat.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/repository"
)

type Service struct {
	repo       *repository.PushRepository
	keys       *VAPIDKeys
	subscriber string
}

// NewService creates the push sender. subscriber is the contact address the
// Web Push spec requires in the VAPID claims (mailto: or https:).
func NewService(repo *repository.PushRepository, keys *VAPIDKeys, subscriber string) *Service {
	return &Service{repo: repo, keys: keys, subscriber: subscriber}
}

// Subscribe stores a browser subscription for the user.
func (s *Service) Subscribe(ctx context.Context, sub *repository.PushSubscription) error {
	return s.repo.Save(ctx, sub)
}

// Unsubscribe removes the subscription with the given endpoint.
func (s *Service) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return s.repo.Delete(ctx, userID, endpoint)
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify sends a notification to every subscription of the user. Failures are
// logged and otherwise ignored; an expired endpoint (404/410) is removed.
func (s *Service) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	defer logger.DeferLogDuration("push.Notify", time.Now())()
	subs, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push notify user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(notification{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push notify marshal: %v", err)
		return
	}
	for _, sub := range subs {
		target := &webpush.Subscription{Endpoint: sub.Endpoint}
		target.Keys.P256dh = sub.P256dh
		target.Keys.Auth = sub.Auth
		resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.keys.PublicKey,
			VAPIDPrivateKey: s.keys.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			// Subscription expired on the push service side.
			if err := s.repo.DeleteEndpoint(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push delete expired endpoint: %v", err)
			}
		}
		resp.Body.Close()
	}
}
