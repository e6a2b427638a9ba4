package producer

import "time"

type Option func(*Producer)

func ConnAttempts(attempts int) Option {
	return func(p *Producer) {
		p.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(p *Producer) {
		p.connTimeout = timeout
	}
}

// BatchTimeout bounds how long the writer buffers a message before flushing.
func BatchTimeout(timeout time.Duration) Option {
	return func(p *Producer) {
		p.batchTimeout = timeout
	}
}

func WriteTimeout(timeout time.Duration) Option {
	return func(p *Producer) {
		p.writeTimeout = timeout
	}
}

func AutoCreateTopics(allow bool) Option {
	return func(p *Producer) {
		p.autoCreateTopics = allow
	}
}
