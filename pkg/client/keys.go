package client

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Keys maps key commands to actions. Nil actions are ignored.
type Keys struct {
	Quit   func()
	Cancel func()
	Start  func()
}

// ReadKeys reads one command per line from r: "q" quits, "x" cancels and
// "s" or an empty line starts recording. It returns after Quit, or when ctx
// is done. Once r is exhausted no further commands arrive, and ReadKeys waits
// for ctx.
func ReadKeys(ctx context.Context, r io.Reader, k Keys) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return ctx.Err()
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "q", "quit":
				call(k.Quit)
				return nil
			case "x":
				call(k.Cancel)
			case "s", "":
				call(k.Start)
			}
		}
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
