package intent

import "strings"

// SortOrder defines how results should be ordered when listing intents.
type SortOrder int

const (
	// SortByUpdatedDesc orders intents by UpdatedAt descending (most recent first).
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc orders intents by UpdatedAt ascending (oldest first).
	SortByUpdatedAsc
)

// ListOptions controls how intents are selected when querying the store.
type ListOptions struct {
	Limit  int
	Offset int
	UserID string
	// Active filters by the isActive flag when non-nil.
	Active *bool
	// Actions filters by action type when non-empty.
	Actions []Action
	// DueBefore selects intents whose NextExecution is at or before the given
	// unix timestamp, plus condition-based intents which carry no schedule.
	// Zero disables the filter.
	DueBefore int64
	// IncludeExecuted keeps terminal one-shot intents in the result set.
	IncludeExecuted bool
	Order           SortOrder
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	if len(opts.Actions) > 0 {
		opts.Actions = normalizeActions(opts.Actions)
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of intents returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching intents before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithUser restricts results to one owning user.
func WithUser(userID string) ListOption {
	return func(opts *ListOptions) {
		opts.UserID = userID
	}
}

// WithActive filters intents by the isActive flag.
func WithActive(active bool) ListOption {
	return func(opts *ListOptions) {
		opts.Active = new(bool)
		*opts.Active = active
	}
}

// WithActions filters intents by the provided action types.
func WithActions(actions ...Action) ListOption {
	return func(opts *ListOptions) {
		opts.Actions = append(opts.Actions[:0], actions...)
	}
}

// WithDueBefore selects intents eligible for an execution check at the given
// unix timestamp.
func WithDueBefore(ts int64) ListOption {
	return func(opts *ListOptions) {
		opts.DueBefore = ts
	}
}

// WithExecutedIncluded keeps terminal one-shot intents in the result set.
func WithExecutedIncluded() ListOption {
	return func(opts *ListOptions) {
		opts.IncludeExecuted = true
	}
}

// WithSortOrder changes the returned order of intents.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// BuildListOptions applies option functions on top of defaults.
func BuildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeActions(input []Action) []Action {
	seen := make(map[Action]struct{}, len(input))
	result := make([]Action, 0, len(input))
	for _, action := range input {
		if !IsValidAction(action) {
			continue
		}
		if _, ok := seen[action]; ok {
			continue
		}
		seen[action] = struct{}{}
		result = append(result, action)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
