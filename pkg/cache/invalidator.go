package cache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type Invalidator interface {
	Invalidate(tags ...Tag) error
}

// Bust applies the policy of a route that just succeeded. Failures are
// logged and swallowed: invalidation never changes the response.
func Bust(log *logrus.Entry, invalidator Invalidator, route Route) {
	tags := TagsFor(route)
	if invalidator == nil || len(tags) == 0 {
		return
	}
	log = log.WithField("route", route.String())

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Errorf("Cache invalidation panic. Reason: %v", recovered)
		}
	}()

	if err := invalidator.Invalidate(tags...); err != nil {
		log.Warnf("Cache invalidation error. Reason: %v", err)
		return
	}
	log.WithField("tags", tags).Debugf("Cache tags invalidated")
}

type multiInvalidator []Invalidator

// Multi invalidates through every invalidator, reporting the first error.
func Multi(invalidators ...Invalidator) Invalidator {
	return multiInvalidator(invalidators)
}

func (invalidators multiInvalidator) Invalidate(tags ...Tag) error {
	var first error
	for _, invalidator := range invalidators {
		if invalidator == nil {
			continue
		}
		if err := invalidator.Invalidate(tags...); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// notifier pushes invalidated tags to presentation-tier instances that keep
// their own caches. Delivery is asynchronous and best effort.
type notifier struct {
	urls       []string
	httpClient *http.Client
}

func NewNotifier(urls []string, timeout time.Duration) *notifier {
	return &notifier{
		urls:       urls,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type notification struct {
	Tags []Tag `json:"tags"`
}

func (n *notifier) Invalidate(tags ...Tag) error {
	if len(n.urls) == 0 {
		return nil
	}
	payload, err := json.Marshal(notification{Tags: tags})
	if err != nil {
		return err
	}
	for _, url := range n.urls {
		go n.send(url, payload)
	}
	return nil
}

func (n *notifier) send(url string, payload []byte) {
	log := logrus.WithField("notifyUrl", url)
	resp, err := n.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Warnf("Invalidation notify error. Reason: %v", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warnf("Invalidation notify error. Reason: status %d", resp.StatusCode)
	}
}
