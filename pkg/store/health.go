package store

import (
	"context"
	"time"
)

// HealthStatus reports database connectivity and pool statistics for the
// health endpoint.
type HealthStatus struct {
	Status        string        `json:"status"`
	ResponseTime  time.Duration `json:"response_time_ms"`
	AcquiredConns int32         `json:"acquired_conns"`
	IdleConns     int32         `json:"idle_conns"`
	MaxConns      int32         `json:"max_conns"`
	TotalConns    int32         `json:"total_conns"`
}

// Health checks database connectivity and returns connection pool
// statistics, mirroring the teacher's database.Health over pgxpool's
// Stat() in place of database/sql.DBStats.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	if err := s.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}

	stat := s.pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
		TotalConns:    stat.TotalConns(),
	}, nil
}
