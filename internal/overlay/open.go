package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const connectTimeout = 5 * time.Second

// Open selects a Store from the scheme of uri:
//
//	mongodb://host:27017, mongodb+srv://...   MongoDB, database named by database
//	redis://host:6379/0                      Redis
//	sqlite:overlays.db, sqlite:///abs/path   SQLite file
//	memory://                                in-process, lost on restart
//
// An unreachable MongoDB is logged and tolerated; the driver keeps retrying.
func Open(ctx context.Context, uri, database string, log *slog.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, fmt.Errorf("overlay store uri %q has no scheme", uri)
	}

	switch scheme {
	case "mongodb", "mongodb+srv":
		s, err := OpenMongo(ctx, uri, database)
		if s == nil {
			return nil, err
		}
		if err != nil {
			log.Warn("overlay store not reachable yet", slog.String("backend", "mongodb"), slog.String("error", err.Error()))
		}
		return s, nil
	case "redis", "rediss":
		return OpenRedis(ctx, uri)
	case "sqlite":
		path := strings.TrimPrefix(rest, "//")
		if path == "" {
			return nil, fmt.Errorf("sqlite uri %q has no path", uri)
		}
		return OpenSQLite(ctx, path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported overlay store scheme %q", scheme)
	}
}
