package app

// Version is reported by the health endpoint and tracing resource. Release
// builds override it with -ldflags "-X .../internal/app.Version=...".
var Version = "0.1.0-dev"
