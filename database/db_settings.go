package database

import (
	"context"
	"strings"

	"userdeck/common"
)

// app_settings: simple KV store for runtime overrides.

// GetAppSetting retrieves an app setting value
func GetAppSetting(ctx context.Context, key string) (string, bool) {
	var v string
	err := common.DB.QueryRow(ctx, `SELECT value FROM app_settings WHERE key=$1`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// SetAppSetting sets an app setting value
func SetAppSetting(ctx context.Context, key, value string) error {
	_, err := common.DB.Exec(ctx, `
		INSERT INTO app_settings (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()
	`, key, value)
	return err
}

// DelAppSetting deletes an app setting
func DelAppSetting(ctx context.Context, key string) error {
	_, err := common.DB.Exec(ctx, `DELETE FROM app_settings WHERE key=$1`, key)
	return err
}

// GetAppSettingBool reads a setting as a bool override. The first return is
// nil when the key is absent.
func GetAppSettingBool(ctx context.Context, key string) *bool {
	s, ok := GetAppSetting(ctx, key)
	if !ok {
		return nil
	}
	b := IsTrueish(s)
	return &b
}

// IsTrueish checks if a string represents a true value
func IsTrueish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}
