package bot

import "context"

// invoker 调用处理函数；参数无法全部提取时返回 handled=false
type invoker func(ctx context.Context, c *Context) (handled bool, err error)

// Handler 类型擦除后的处理函数，由 Fn0..Fn8 或 ContextFn 构造。
// 构造时解析每个参数的提取函数，参数类型没有提取函数时 panic。
type Handler struct {
	invoke invoker
}

// ContextFn 直接接收 *Context 的处理函数，总是被调用
func ContextFn(fn func(ctx context.Context, c *Context) error) Handler {
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		return true, fn(ctx, c)
	}}
}

func Fn0(fn func(ctx context.Context) error) Handler {
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		return true, fn(ctx)
	}}
}

func Fn1[A any](fn func(context.Context, A) error) Handler {
	x1 := mustLookup[A]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1)
	}}
}

func Fn2[A, B any](fn func(context.Context, A, B) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2)
	}}
}

func Fn3[A, B, C any](fn func(context.Context, A, B, C) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3)
	}}
}

func Fn4[A, B, C, D any](fn func(context.Context, A, B, C, D) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	x4 := mustLookup[D]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		v4, ok := x4(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3, v4)
	}}
}

func Fn5[A, B, C, D, E any](fn func(context.Context, A, B, C, D, E) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	x4 := mustLookup[D]()
	x5 := mustLookup[E]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		v4, ok := x4(c)
		if !ok {
			return false, nil
		}
		v5, ok := x5(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3, v4, v5)
	}}
}

func Fn6[A, B, C, D, E, F any](fn func(context.Context, A, B, C, D, E, F) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	x4 := mustLookup[D]()
	x5 := mustLookup[E]()
	x6 := mustLookup[F]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		v4, ok := x4(c)
		if !ok {
			return false, nil
		}
		v5, ok := x5(c)
		if !ok {
			return false, nil
		}
		v6, ok := x6(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3, v4, v5, v6)
	}}
}

func Fn7[A, B, C, D, E, F, G any](fn func(context.Context, A, B, C, D, E, F, G) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	x4 := mustLookup[D]()
	x5 := mustLookup[E]()
	x6 := mustLookup[F]()
	x7 := mustLookup[G]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		v4, ok := x4(c)
		if !ok {
			return false, nil
		}
		v5, ok := x5(c)
		if !ok {
			return false, nil
		}
		v6, ok := x6(c)
		if !ok {
			return false, nil
		}
		v7, ok := x7(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3, v4, v5, v6, v7)
	}}
}

func Fn8[A, B, C, D, E, F, G, H any](fn func(context.Context, A, B, C, D, E, F, G, H) error) Handler {
	x1 := mustLookup[A]()
	x2 := mustLookup[B]()
	x3 := mustLookup[C]()
	x4 := mustLookup[D]()
	x5 := mustLookup[E]()
	x6 := mustLookup[F]()
	x7 := mustLookup[G]()
	x8 := mustLookup[H]()
	return Handler{invoke: func(ctx context.Context, c *Context) (bool, error) {
		v1, ok := x1(c)
		if !ok {
			return false, nil
		}
		v2, ok := x2(c)
		if !ok {
			return false, nil
		}
		v3, ok := x3(c)
		if !ok {
			return false, nil
		}
		v4, ok := x4(c)
		if !ok {
			return false, nil
		}
		v5, ok := x5(c)
		if !ok {
			return false, nil
		}
		v6, ok := x6(c)
		if !ok {
			return false, nil
		}
		v7, ok := x7(c)
		if !ok {
			return false, nil
		}
		v8, ok := x8(c)
		if !ok {
			return false, nil
		}
		return true, fn(ctx, v1, v2, v3, v4, v5, v6, v7, v8)
	}}
}
