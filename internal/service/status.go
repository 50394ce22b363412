package service

import "dispatch-service/internal/storage"

var recognizedStatuses = map[string]bool{
	storage.StatusPending:    true,
	storage.StatusAssigned:   true,
	storage.StatusEnRoute:    true,
	storage.StatusInProgress: true,
	storage.StatusCompleted:  true,
	storage.StatusCancelled:  true,
}

// ValidStatus reports whether s is a recognized job status.
func ValidStatus(s string) bool {
	return recognizedStatuses[s]
}

// strictTransitions is the declared lifecycle graph, used only when the
// policy is strict. cancelled is reachable from every non-terminal state.
var strictTransitions = map[string][]string{
	storage.StatusPending:    {storage.StatusAssigned, storage.StatusCancelled},
	storage.StatusAssigned:   {storage.StatusEnRoute, storage.StatusInProgress, storage.StatusCancelled},
	storage.StatusEnRoute:    {storage.StatusInProgress, storage.StatusCancelled},
	storage.StatusInProgress: {storage.StatusCompleted, storage.StatusCancelled},
	storage.StatusCompleted:  {},
	storage.StatusCancelled:  {},
}

// TransitionPolicy decides which status moves are accepted. The default is
// permissive: any recognized status is a valid target from any state, which
// keeps operator tooling free to correct records. Strict mode enforces the
// declared graph instead.
type TransitionPolicy struct {
	Strict bool
}

// Allowed reports whether a job may move from one status to another.
func (p TransitionPolicy) Allowed(from, to string) bool {
	if !ValidStatus(to) {
		return false
	}
	if !p.Strict {
		return true
	}

	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
