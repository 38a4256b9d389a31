package utils

import "strings"

var phoneCleaner = strings.NewReplacer("+", "", "-", "", " ", "")

// CleanPhone strips '+', '-' and spaces so numbers from different providers compare equal.
func CleanPhone(phone string) string {
	return phoneCleaner.Replace(strings.TrimSpace(phone))
}
