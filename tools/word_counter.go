//go:build ignore

package main

import (
	"context"
	"fmt"
	"unicode"
)

func Name() string { return "word_counter" }

func Description() string { return "Counts the number of words in a given text string." }

// Execute expects args["text"] and returns the word count as a string.
func Execute(ctx context.Context, args map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := args["text"]
	if text == "" {
		return "0", nil
	}
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				count++
				inWord = true
			}
		} else {
			inWord = false
		}
	}
	return fmt.Sprintf("%d", count), nil
}
