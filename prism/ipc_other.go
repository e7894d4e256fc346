//go:build !unix

package prism

const ipcSupported = false
