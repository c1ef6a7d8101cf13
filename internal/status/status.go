// Package status holds the one piece of state shared between the sequential
// engine and its concurrent observers (remote-control poller, HTTP endpoint):
// a lock-protected progress record. The engine only ever writes under the
// lock and never blocks on a reader.
package status

import "sync"

// View is a consistent snapshot of the runner's progress.
type View struct {
	CurrentUser    string   `json:"current_user,omitempty"`
	CurrentCourse  string   `json:"current_course,omitempty"`
	Progress       string   `json:"progress,omitempty"`
	TotalAccounts  int      `json:"total_accounts"`
	DoneAccounts   int      `json:"done_accounts"`
	FailedAccounts []string `json:"failed_accounts,omitempty"`
}

type RunnerState struct {
	mu sync.Mutex
	v  View
}

func NewRunnerState(total int) *RunnerState {
	return &RunnerState{v: View{TotalAccounts: total}}
}

// SetCurrent records the account/course the engine is working on.
func (s *RunnerState) SetCurrent(user, course, progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.CurrentUser = user
	s.v.CurrentCourse = course
	s.v.Progress = progress
}

// SetProgress updates only the free-form progress line.
func (s *RunnerState) SetProgress(progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Progress = progress
}

// MarkCompleted finishes the current account successfully.
func (s *RunnerState) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.DoneAccounts++
	s.clearCurrentLocked()
}

// MarkFailed finishes the current account as failed.
func (s *RunnerState) MarkFailed(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.DoneAccounts++
	for _, f := range s.v.FailedAccounts {
		if f == user {
			s.clearCurrentLocked()
			return
		}
	}
	s.v.FailedAccounts = append(s.v.FailedAccounts, user)
	s.clearCurrentLocked()
}

// ClearFailed removes accounts that an operator moved back to pending.
func (s *RunnerState) ClearFailed(users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.v.FailedAccounts[:0]
	drop := make(map[string]bool, len(users))
	for _, u := range users {
		drop[u] = true
	}
	for _, f := range s.v.FailedAccounts {
		if !drop[f] {
			keep = append(keep, f)
		}
	}
	s.v.FailedAccounts = keep
}

func (s *RunnerState) clearCurrentLocked() {
	s.v.CurrentUser = ""
	s.v.CurrentCourse = ""
	s.v.Progress = ""
}

// Snapshot returns a copy safe to use outside the lock.
func (s *RunnerState) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.v
	v.FailedAccounts = append([]string(nil), s.v.FailedAccounts...)
	return v
}
