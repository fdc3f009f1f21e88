//go:build windows

package main

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	user32                    = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow      = kernel32.NewProc("GetConsoleWindow")
	procGetConsoleProcessList = kernel32.NewProc("GetConsoleProcessList")
	procShowWindow            = user32.NewProc("ShowWindow")
)

const swHide = 0

// hideConsoleWindow hides the console a double-clicked multisendergui.exe opens.
// A console shared with a parent shell stays visible so its log output can be read.
func hideConsoleWindow() {
	if procGetConsoleWindow.Find() != nil || procShowWindow.Find() != nil {
		return
	}
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 || !ownsConsole() {
		return
	}
	procShowWindow.Call(hwnd, swHide)
}

// ownsConsole reports whether this process is the only one attached to its console.
func ownsConsole() bool {
	if procGetConsoleProcessList.Find() != nil {
		return false
	}
	var pids [2]uint32
	n, _, _ := procGetConsoleProcessList.Call(uintptr(unsafe.Pointer(&pids[0])), uintptr(len(pids)))
	return n == 1
}
