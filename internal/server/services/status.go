package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// GetServiceStatus probes the database, the cache and the blob store
// concurrently. Failed probes are marked in the response, never returned,
// and their error text goes to the log only.
func (s *FileService) GetServiceStatus(ctx context.Context) *models.ServiceStatusResponse {
	type probe struct {
		name    string
		fn      func(context.Context) error
		latency *float64
	}

	resp := &models.ServiceStatusResponse{Status: models.StatusHealthy}
	probes := []probe{
		{name: "db", fn: s.pingDB, latency: &resp.DBLatencyMs},
		{name: "storage", fn: s.blobs.Check, latency: &resp.StorageLatencyMs},
	}
	if s.cache != nil {
		probes = append(probes, probe{name: "cache", fn: s.cache.Ping, latency: &resp.CacheLatencyMs})
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		causes = map[string]string{}
	)
	for _, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := p.fn(ctx)
			*p.latency = float64(time.Since(start).Microseconds()) / 1000
			if err != nil {
				mu.Lock()
				causes[p.name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(causes) > 0 {
		resp.Status = models.StatusUnhealthy
		resp.Errors = make(map[string]string, len(causes))
		for name := range causes {
			resp.Errors[name] = models.ProbeUnavailable
		}
		s.logger.Warn(ctx, "service status degraded", "errors", causes)
	}
	return resp
}
