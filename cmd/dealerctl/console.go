package main

import (
	"fmt"
	"io"
	"sync"

	"dealergate/internal/guard"
)

// consoleRouter stands in for the browser router: it tracks the current
// path and prints every navigation.
type consoleRouter struct {
	out  io.Writer
	mu   sync.Mutex
	path string
}

func (c *consoleRouter) Navigate(path string, opts guard.NavigateOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := ""
	if opts.From != "" {
		from = " (return to " + opts.From + ")"
	}
	fmt.Fprintf(c.out, "  -> %s%s\n", path, from)
	c.path = path
}

func (c *consoleRouter) CurrentPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// visit is a user-initiated navigation.
func (c *consoleRouter) visit(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "visit %s\n", path)
	c.path = path
}

type consoleNotifier struct{ out io.Writer }

func (n consoleNotifier) Info(title, body string) {
	fmt.Fprintf(n.out, "  [info] %s: %s\n", title, body)
}

func (n consoleNotifier) Error(title, body string) {
	fmt.Fprintf(n.out, "  [error] %s: %s\n", title, body)
}
