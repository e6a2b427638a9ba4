package executor

import "time"

type Option func(*Pool)

func Workers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func ShutdownTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		p.shutdownTimeout = timeout
	}
}
