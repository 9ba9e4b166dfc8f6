//go:build ignore

package main

import (
	"context"
	"fmt"
)

func Name() string { return "string_reverser" }

func Description() string { return "Reverses the input string character by character." }

// Execute expects args["text"] and returns its reverse.
func Execute(ctx context.Context, args map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := args["text"]
	if !ok || text == "" {
		return "", fmt.Errorf("string_reverser: missing arg: text")
	}
	runes := []rune(text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}
