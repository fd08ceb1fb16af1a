// Package bot 把协议客户端产生的事件分发给声明式注册的处理函数。
//
// 处理函数是普通的 Go 函数，参数类型决定了它需要从事件中取得什么：
//
//	b.Handle(bot.Fn2(func(ctx context.Context, r bot.Responder, a bot.Args[Sum]) error {
//		return r.Reply(ctx, strconv.Itoa(a.Value.A+a.Value.B))
//	}), bot.Pattern(`^sum\b`))
//
// 处理函数按注册顺序匹配。过滤器全部通过、且每个参数都能从上下文中取得时才会被调用，
// 否则继续尝试下一个；全部不匹配时调用回退处理函数。
//
// Run 顺序读取事件，每个事件在独立的 goroutine 中分发，处理函数返回的错误交给错误处理函数。
package bot
