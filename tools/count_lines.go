//go:build ignore

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

func Name() string { return "count_lines" }

func Description() string { return "Counts the number of lines in a given text." }

// Execute expects args["text"] and returns the line count as a string.
func Execute(ctx context.Context, args map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := args["text"]
	if !ok {
		return "", fmt.Errorf("count_lines: missing arg: text")
	}
	scanner := bufio.NewScanner(strings.NewReader(text))
	count := 0
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", count), nil
}
