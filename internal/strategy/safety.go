package strategy

import (
	"sync"
	"time"
)

type Status string

const (
	StatusIdle              Status = "IDLE"
	StatusRunning           Status = "RUNNING"
	StatusSafeMode          Status = "SAFE_MODE"
	StatusPermissionExpired Status = "PERMISSION_EXPIRED"
)

// Monitor is the safety state machine shared by all pair loops. Transitions
// are serialized; only the decision loop drives them.
//
// Idle → Running ⇄ SafeMode, Running → PermissionExpired (until renewal),
// any → Idle on explicit stop.
type Monitor struct {
	mu            sync.Mutex
	status        Status
	safeModeUntil time.Time
	failures      int
	lastSuccess   time.Time

	maxFailures int
	cooldown    time.Duration
}

func NewMonitor(maxFailures int, cooldown time.Duration) *Monitor {
	return &Monitor{
		status:      StatusIdle,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusIdle {
		m.status = StatusRunning
	}
}

// Stop forces Idle from any state and clears the failure counter.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusIdle
	m.failures = 0
	m.safeModeUntil = time.Time{}
}

// Tick is called at the top of every cycle. While in SafeMode it checks only
// whether the cooldown elapsed; recovery resets the failure counter.
func (m *Monitor) Tick(now time.Time) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusSafeMode && !now.Before(m.safeModeUntil) {
		m.status = StatusRunning
		m.failures = 0
		m.safeModeUntil = time.Time{}
	}
	return m.status
}

// RecordFailure counts a fetch or execution error. Reaching the configured
// maximum trips SafeMode for the cooldown period.
func (m *Monitor) RecordFailure(now time.Time) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusRunning {
		return m.status
	}
	m.failures++
	if m.failures >= m.maxFailures {
		m.status = StatusSafeMode
		m.safeModeUntil = now.Add(m.cooldown)
	}
	return m.status
}

func (m *Monitor) RecordSuccess(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
	m.lastSuccess = now
}

// ExpirePermission halts trading until an external renewal is observed.
func (m *Monitor) ExpirePermission() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusIdle {
		m.status = StatusPermissionExpired
	}
}

// Renew resumes from PermissionExpired after the permission collaborator
// reports a fresh grant.
func (m *Monitor) Renew() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusPermissionExpired {
		m.status = StatusRunning
		m.failures = 0
	}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func (m *Monitor) SafeModeUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.safeModeUntil
}

func (m *Monitor) LastSuccess() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSuccess
}
