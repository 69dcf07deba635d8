package domain

// ResultState is the tag of a Result.
type ResultState int

const (
	StateLoading ResultState = iota
	StateSuccess
	StateError
)

func (s ResultState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the tri-state outcome emitted by streaming reads: still loading,
// a value, or a failure with its cause.
type Result[T any] struct {
	state ResultState
	value T
	err   error
}

// Loading returns a Result that has not produced a value yet.
func Loading[T any]() Result[T] {
	return Result[T]{state: StateLoading}
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{state: StateSuccess, value: v}
}

// Failure wraps a cause. A nil err is replaced by ErrDependency so Err never
// returns nil for a failed result.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrDependency
	}
	return Result[T]{state: StateError, err: err}
}

// State returns the tag.
func (r Result[T]) State() ResultState {
	return r.state
}

// Value returns the wrapped value and whether the result is a success.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.state == StateSuccess
}

// Err returns the failure cause, or nil for loading and success.
func (r Result[T]) Err() error {
	return r.err
}

// Match dispatches on the tag. Every branch must be supplied.
func (r Result[T]) Match(onLoading func(), onSuccess func(T), onError func(error)) {
	switch r.state {
	case StateSuccess:
		onSuccess(r.value)
	case StateError:
		onError(r.err)
	default:
		onLoading()
	}
}
