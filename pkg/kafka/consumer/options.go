package consumer

import "time"

type Option func(*Consumer)

func ConnAttempts(attempts int) Option {
	return func(c *Consumer) {
		c.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(c *Consumer) {
		c.connTimeout = timeout
	}
}

// StartFromFirst makes a new consumer group read the topic from the earliest offset.
func StartFromFirst(first bool) Option {
	return func(c *Consumer) {
		if first {
			c.startOffset = -2
		} else {
			c.startOffset = -1
		}
	}
}

func MaxWait(wait time.Duration) Option {
	return func(c *Consumer) {
		c.maxWait = wait
	}
}
