// Package ratelimit throttles MCP tool calls with per-tool token buckets and
// bounds retries of storage operations.
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/labkit/internal/fault"
)

// Limiter is a per-key token bucket. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket size and initial token count
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling at rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve takes one token for key. When none is available it returns false
// and how long until the next token.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1.0 - b.tokens) / l.rate
	return false, time.Duration(math.Ceil(wait * float64(time.Second)))
}

// refill tops up key's bucket for the time elapsed since its last use.
// The caller holds l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}
	return b
}

// Class groups tools that share a budget shape.
type Class int

const (
	// Browse tools only read state.
	Browse Class = iota
	// Edit tools change an open experiment in memory.
	Edit
	// Lifecycle tools open, save and close experiments.
	Lifecycle
	// Files tools read or write archive files, or delete saved versions.
	Files
)

type budget struct {
	perMinute float64
	burst     int
}

var classBudgets = map[Class]budget{
	Browse:    {60, 10},
	Edit:      {120, 20},
	Lifecycle: {10, 3},
	Files:     {5, 2},
}

// ToolClasses assigns every lab_* tool to its class.
var ToolClasses = map[string]Class{
	"lab_models":     Browse,
	"lab_show":       Browse,
	"lab_list":       Browse,
	"lab_place":      Edit,
	"lab_move":       Edit,
	"lab_remove":     Edit,
	"lab_connect":    Edit,
	"lab_disconnect": Edit,
	"lab_create":     Lifecycle,
	"lab_open":       Lifecycle,
	"lab_save":       Lifecycle,
	"lab_close":      Lifecycle,
	"lab_import":     Files,
	"lab_export":     Files,
	"lab_delete":     Files,
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters gives every tool in ToolClasses its own bucket sized by
// its class. lab_delete gets a burst of one.
func NewToolLimiters() ToolLimiters {
	limiters := make(ToolLimiters, len(ToolClasses))
	for tool, class := range ToolClasses {
		b := classBudgets[class]
		if tool == "lab_delete" {
			b.burst = 1
		}
		limiters[tool] = NewLimiter(b.perMinute/60.0, b.burst)
	}
	return limiters
}

// CheckLimit takes a token for toolName. Tools without a limiter are always
// allowed. A throttled call fails with ResponseFailed code 429.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if ok, wait := limiter.Reserve(toolName); !ok {
		return fault.ResponseFailed(http.StatusTooManyRequests,
			fmt.Sprintf("rate limit exceeded for %s, retry in %s", toolName, wait.Round(time.Second)))
	}
	return nil
}
