package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectWorkerRPC   = "void.worker.rpc"
	SubjectChangeEvent = "void.changed"
)

// BuildChangeSubject builds the granular change subject for one store.
func BuildChangeSubject(base, store string) string {
	if base == "" {
		base = SubjectChangeEvent
	}
	return fmt.Sprintf("%s.%s", base, sanitizeToken(store))
}

// BuildWorkerSubject builds the RPC subject of a named worker instance.
func BuildWorkerSubject(service string) string {
	if service == "" {
		return SubjectWorkerRPC
	}
	return fmt.Sprintf("void.worker.%s.rpc", sanitizeToken(service))
}

// sanitizeToken keeps a value usable as a single subject token.
func sanitizeToken(s string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(strings.TrimSpace(s))
}
