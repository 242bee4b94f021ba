package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xray-tech/xorc-gateway/internal/config"
)

// Loader produces a full application map.
type Loader interface {
	Load(ctx context.Context) (map[string]*Application, error)
}

// Querier is the subset of pgxpool.Pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const applicationsQuery = `
SELECT app.id::text,
       app.sdk_token,
       ios.api_key     AS ios_key,
       android.api_key AS android_key,
       web.api_key     AS web_key
FROM applications app
LEFT JOIN ios_applications     ios     ON ios.application_id = app.id
LEFT JOIN android_applications android ON android.application_id = app.id
LEFT JOIN web_applications     web     ON web.application_id = app.id
WHERE app.deleted_at IS NULL`

// PostgresLoader reads the application set from the registry database.
// Signature keys are stored hex-encoded per platform table.
type PostgresLoader struct {
	pool Querier
}

// NewPostgresLoader wraps an existing pool.
func NewPostgresLoader(pool Querier) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

// Load implements Loader.
func (l *PostgresLoader) Load(ctx context.Context) (map[string]*Application, error) {
	rows, err := l.pool.Query(ctx, applicationsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying applications: %w", err)
	}
	defer rows.Close()

	apps := make(map[string]*Application)
	for rows.Next() {
		var (
			id                         string
			token                      *string
			iosKey, androidKey, webKey *string
		)
		if err := rows.Scan(&id, &token, &iosKey, &androidKey, &webKey); err != nil {
			return nil, fmt.Errorf("scanning application row: %w", err)
		}

		// applications.sdk_token is nullable; such apps fall back to the
		// process-wide default token at validation time.
		app := &Application{ID: id}
		if token != nil {
			app.Token = *token
		}
		if iosKey != nil {
			if app.IOSKey, err = decodeKey(id, "ios", *iosKey); err != nil {
				return nil, err
			}
		}
		if androidKey != nil {
			if app.AndroidKey, err = decodeKey(id, "android", *androidKey); err != nil {
				return nil, err
			}
		}
		if webKey != nil {
			if app.WebKey, err = decodeKey(id, "web", *webKey); err != nil {
				return nil, err
			}
		}
		apps[id] = app
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading application rows: %w", err)
	}

	return apps, nil
}

// StaticLoader serves applications declared in the configuration file.
// Development only; config.Load refuses test_apps outside development.
type StaticLoader struct {
	apps []config.TestApp
}

// NewStaticLoader wraps the configured test apps.
func NewStaticLoader(apps []config.TestApp) *StaticLoader {
	return &StaticLoader{apps: apps}
}

// Load implements Loader.
func (l *StaticLoader) Load(context.Context) (map[string]*Application, error) {
	apps := make(map[string]*Application, len(l.apps))
	for _, ta := range l.apps {
		app := &Application{ID: ta.AppID, Token: ta.Token}

		var err error
		if app.IOSKey, err = decodeKey(ta.AppID, "ios", ta.SecretIOS); err != nil {
			return nil, err
		}
		if app.AndroidKey, err = decodeKey(ta.AppID, "android", ta.SecretAndroid); err != nil {
			return nil, err
		}
		if app.WebKey, err = decodeKey(ta.AppID, "web", ta.SecretWeb); err != nil {
			return nil, err
		}
		apps[ta.AppID] = app
	}
	return apps, nil
}
