package status

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SelfPinger periodically fetches the service's own public URL. Free-tier
// hosts idle out services with no inbound traffic; the ping keeps the
// ingest loop resident.
type SelfPinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSelfPinger returns a pinger for url, or nil when url is empty.
func NewSelfPinger(url string, interval time.Duration, log *slog.Logger) *SelfPinger {
	if url == "" {
		return nil
	}
	return &SelfPinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ping loop. Safe to call on a nil pinger.
func (s *SelfPinger) Start() {
	if s == nil {
		return
	}
	go s.run()
}

// Stop ends the ping loop. Safe to call on a nil pinger and more than once.
func (s *SelfPinger) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *SelfPinger) run() {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.ping()
		}
	}
}

func (s *SelfPinger) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.log.Warn("selfping: bad url", "url", s.url, "error", err)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("selfping: request failed", "url", s.url, "error", err)
		return
	}
	resp.Body.Close()
	s.log.Debug("selfping: ok", "url", s.url, "code", resp.StatusCode)
}
