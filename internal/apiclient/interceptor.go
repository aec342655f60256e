package apiclient

import "net/http"

// Interceptor is one stage of a request or response pipeline. Fulfilled sees
// the value when the previous stage succeeded; Rejected sees the error when it
// failed. Either may be nil, in which case the stage passes through.
type Interceptor[T any] struct {
	Fulfilled func(T) (T, error)
	Rejected  func(error) error
}

type (
	RequestInterceptor  = Interceptor[*http.Request]
	ResponseInterceptor = Interceptor[*http.Response]
)

// PassThrough forwards values and rejects with the original error unchanged.
func PassThrough[T any]() Interceptor[T] {
	return Interceptor[T]{
		Fulfilled: func(v T) (T, error) { return v, nil },
		Rejected:  func(err error) error { return err },
	}
}

func (i Interceptor[T]) apply(v T, err error) (T, error) {
	if err != nil {
		if i.Rejected == nil {
			return v, err
		}
		return v, i.Rejected(err)
	}
	if i.Fulfilled == nil {
		return v, nil
	}
	return i.Fulfilled(v)
}

func runChain[T any](chain []Interceptor[T], v T, err error) (T, error) {
	for _, stage := range chain {
		v, err = stage.apply(v, err)
	}
	return v, err
}
