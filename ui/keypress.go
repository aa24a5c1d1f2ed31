// Package ui reads single key presses from the console.
package ui

import (
	"sync"

	"github.com/eiannone/keyboard"
)

const (
	KeyEnter rune = '\r'
	KeyEsc   rune = 27
)

var (
	keyCh     chan rune
	startOnce sync.Once
)

// StartKeyEvents returns a channel that emits single-key runes read without
// Enter. Enter and Esc arrive as KeyEnter and KeyEsc.
func StartKeyEvents() chan rune {
	startOnce.Do(func() {
		keyCh = make(chan rune, 64)
		if err := keyboard.Open(); err != nil {
			// Keyboard not available; keep a buffered channel that will never emit.
			return
		}
		go func() {
			defer keyboard.Close()
			for {
				char, key, err := keyboard.GetKey()
				if err != nil {
					close(keyCh)
					return
				}
				if key == 0 {
					select {
					case keyCh <- char:
					default:
					}
				} else if key == keyboard.KeyEnter {
					select {
					case keyCh <- KeyEnter:
					default:
					}
				} else if key == keyboard.KeyEsc {
					select {
					case keyCh <- KeyEsc:
					default:
					}
				}
			}
		}()
	})
	if keyCh == nil {
		keyCh = make(chan rune, 64)
	}
	return keyCh
}

// DrainKeys consumes any immediately available keys to avoid accidental triggers.
func DrainKeys() {
	ch := StartKeyEvents()
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// WaitKey blocks until one of allowed is pressed and returns it. A closed
// key channel yields KeyEsc.
func WaitKey(allowed ...rune) rune {
	ch := StartKeyEvents()
	for {
		r, ok := <-ch
		if !ok {
			return KeyEsc
		}
		for _, a := range allowed {
			if r == a {
				return r
			}
		}
	}
}
