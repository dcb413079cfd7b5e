package logging

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// routeSampler keeps one burst sampler per route, so that a busy route does
// not hide the log lines of a quiet one.
type routeSampler struct {
	mu       sync.Mutex
	period   time.Duration
	samplers map[string]zerolog.Sampler
}

func (s *routeSampler) get(route string) zerolog.Sampler {
	s.mu.Lock()
	defer s.mu.Unlock()

	sampler, ok := s.samplers[route]
	if !ok {
		sampler = &zerolog.BurstSampler{Burst: 1, Period: s.period}
		s.samplers[route] = sampler
	}
	return sampler
}

// Middleware logs one line for every request received by the push receiver.
// Successful requests are sampled per route, failed requests are always
// logged.
func Middleware() gin.HandlerFunc {
	sampler := &routeSampler{
		period:   7 * time.Second,
		samplers: make(map[string]zerolog.Sampler),
	}

	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.Request.Method + " " + c.FullPath()

		log := L.With().
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Str("remoteAddr", c.Request.RemoteAddr).
			Logger()

		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		default:
			log = log.Sample(sampler.get(route))
		}

		log.WithLevel(level).
			Strs("errors", c.Errors.Errors()).
			Dur("elapsed", time.Since(begin)).
			Int("statusCode", status).
			Int64("contentLength", c.Request.ContentLength).
			Msg("")
	}
}
