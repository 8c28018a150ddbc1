package protocol

// Version is the envelope protocol version spoken by this build.
const Version = "1.0.0"

// Compatible is the version range a client accepts from a worker.
const Compatible = "^1.0.0"
