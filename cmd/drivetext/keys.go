package main

import (
	"context"
	"fmt"

	"github.com/eiannone/keyboard"
)

// watchCancelKey cancels ctx when q, Esc or Ctrl-C is pressed. The terminal
// is in raw mode while listening, so Ctrl-C arrives as a key, not a signal.
// It is a no-op when stdin is not a terminal. The returned func restores
// the terminal.
func watchCancelKey(ctx context.Context, cancel context.CancelFunc) func() {
	keys, err := keyboard.GetKeys(4)
	if err != nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-keys:
				if !ok {
					return
				}
				if isCancelKey(ev) {
					fmt.Print("\r\nCancelling...\r\n")
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		keyboard.Close()
	}
}

func isCancelKey(ev keyboard.KeyEvent) bool {
	if ev.Err != nil {
		return false
	}
	return ev.Rune == 'q' || ev.Rune == 'Q' || ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC
}
