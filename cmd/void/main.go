// Package main is the entrypoint for void-worker (binary name "void").
package main

func main() {
	Execute()
}
