package dashboard

import (
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Result 是单个子查询的结果：要么有值，要么有错误。
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](value T) Result[T] { return Result[T]{Value: value} }

func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// OK 报告子查询是否成功。
func (r Result[T]) OK() bool { return r.Err == nil }

// OrDefault 在失败时返回 def。
func (r Result[T]) OrDefault(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// settle 在 wg 上启动 fn，把返回值或 panic 都落到 dst 中，绝不向外传播。
func settle[T any](wg *conc.WaitGroup, dst *Result[T], fn func() (T, error)) {
	wg.Go(func() {
		var catcher panics.Catcher
		catcher.Try(func() {
			value, err := fn()
			if err != nil {
				*dst = Fail[T](err)
				return
			}
			*dst = Ok(value)
		})
		if recovered := catcher.Recovered(); recovered != nil {
			*dst = Fail[T](recovered.AsError())
		}
	})
}
