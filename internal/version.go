package internal

// Version is reported by /healthz and the terminal client banner.
const Version = "0.3.0"
