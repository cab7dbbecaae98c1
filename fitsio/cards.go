package fitsio

import (
	"fmt"
	"strconv"
	"strings"
)

func encodeCard(key, value, comment string) string {
	var line string
	if value == "" {
		line = key
	} else {
		line = fmt.Sprintf("%-8s= %20s", key, value)
		if comment != "" {
			line += " / " + comment
		}
	}
	if len(line) > cardSize {
		line = line[:cardSize]
	}
	return line + strings.Repeat(" ", cardSize-len(line))
}

func encodeStringCard(key, value, comment string) string {
	quoted := "'" + strings.ReplaceAll(value, "'", "''") + "'"
	return encodeCard(key, quoted, comment)
}

func decodeCard(raw string) Card {
	if len(raw) < 8 {
		return Card{Key: strings.TrimSpace(raw)}
	}
	key := strings.TrimSpace(raw[:8])
	rest := raw[8:]
	rest = strings.TrimPrefix(rest, "= ")
	rest = strings.TrimPrefix(rest, "=")

	value, comment, found := strings.Cut(rest, "/")
	value = strings.TrimSpace(value)
	if found {
		comment = strings.TrimSpace(comment)
	}
	value = strings.Trim(value, "'")
	value = strings.TrimSpace(value)
	return Card{Key: key, Value: value, Comment: comment}
}

func padToBlock(n int) int {
	if n%blockSize == 0 {
		return n
	}
	return n + (blockSize - n%blockSize)
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
