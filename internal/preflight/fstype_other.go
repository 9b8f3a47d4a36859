//go:build !linux

package preflight

func statfsType(string) string { return "" }
