//go:build windows

package main

import "syscall"

const codePageUTF8 = 65001

// Chinese log entries and reports need a UTF-8 console for both input and output
func init() {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	kernel32.NewProc("SetConsoleOutputCP").Call(uintptr(codePageUTF8))
	kernel32.NewProc("SetConsoleCP").Call(uintptr(codePageUTF8))
}
