package buildinfo

// Set at build time:
//
//	go build -ldflags "-X 'github.com/liraku/lirabot/core/buildinfo.Version=v1.0.0' \
//	  -X 'github.com/liraku/lirabot/core/buildinfo.Commit=abcdef0' \
//	  -X 'github.com/liraku/lirabot/core/buildinfo.Date=2026-01-01T00:00:00Z'"
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)
