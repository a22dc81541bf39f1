// Package semaphore provides a counting semaphore for limiting concurrent work.
package semaphore

// Semaphore is a counting semaphore with n tokens.
type Semaphore struct {
	tokens chan struct{}
}

// New returns a new Semaphore with n free tokens.
func New(n int) *Semaphore {
	return &Semaphore{
		tokens: make(chan struct{}, n),
	}
}

// Wait acquires a token, blocking until one is free.
func (s *Semaphore) Wait() {
	s.tokens <- struct{}{}
}

// TryWait acquires a token without blocking. Returns false if none is free.
func (s *Semaphore) TryWait() bool {
	select {
	case s.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

// Signal releases a previously acquired token.
func (s *Semaphore) Signal() {
	<-s.tokens
}

// Len returns the number of acquired tokens.
func (s *Semaphore) Len() int {
	return len(s.tokens)
}
