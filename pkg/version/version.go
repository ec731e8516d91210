package version

// Version is overridden at build time with -ldflags "-X tourguide/pkg/version.Version=...".
var Version = "dev"
