package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DiscoverRoles returns roles granted to the current database user.
// It reads mysql.role_edges first and falls back to the standard
// information_schema view.
func DiscoverRoles(ctx context.Context, db Queryer) ([]string, error) {
	roles, err := queryStrings(ctx, db, `
		SELECT DISTINCT FROM_USER AS role_name
		FROM mysql.role_edges
		WHERE TO_USER = SUBSTRING_INDEX(CURRENT_USER(), '@', 1)
		  AND TO_HOST = SUBSTRING_INDEX(CURRENT_USER(), '@', -1)
		ORDER BY role_name
	`)
	if err == nil {
		return roles, nil
	}

	slog.Debug("role discovery fallback to information_schema",
		slog.String("error", err.Error()),
	)
	roles, fallbackErr := queryStrings(ctx, db, `
		SELECT ROLE_NAME
		FROM information_schema.applicable_roles
		WHERE GRANTEE = CURRENT_USER()
		ORDER BY ROLE_NAME
	`)
	if fallbackErr != nil {
		return nil, fmt.Errorf("role discovery failed: %w", fallbackErr)
	}
	return roles, nil
}

// BroadGrants returns the grants of the current user that allow reading the
// target database without assuming a role. Per-request roles only restrict
// access when this list is empty.
func BroadGrants(ctx context.Context, db Queryer, targetDatabase string) ([]string, error) {
	grants, err := queryStrings(ctx, db, "SHOW GRANTS FOR CURRENT_USER()")
	if err != nil {
		return nil, fmt.Errorf("failed to query user privileges: %w", err)
	}

	dbPattern := fmt.Sprintf("ON `%s`.*", targetDatabase)
	var broad []string
	for _, grant := range grants {
		if !strings.Contains(grant, "ON *.*") && !strings.Contains(grant, dbPattern) {
			continue
		}
		if containsSelectPrivilege(grant) || strings.Contains(strings.ToUpper(grant), "ALL PRIVILEGES") {
			broad = append(broad, grant)
		}
	}
	return broad, nil
}

func containsSelectPrivilege(grant string) bool {
	upper := strings.ToUpper(grant)
	return strings.HasPrefix(upper, "GRANT SELECT") ||
		strings.Contains(upper, " SELECT,") ||
		strings.Contains(upper, " SELECT ON")
}

func queryStrings(ctx context.Context, db Queryer, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
