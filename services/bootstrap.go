package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"userdeck/common"
	"userdeck/database"
)

// Startup provisioning: first superuser from env, optional YAML seed file.

// SeedUser is one entry of the USERDECK_SEED_FILE document.
type SeedUser struct {
	Email       string `yaml:"email"`
	FullName    string `yaml:"full_name"`
	Password    string `yaml:"password"`
	IsActive    *bool  `yaml:"is_active"`
	IsSuperuser bool   `yaml:"is_superuser"`
}

type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// ParseSeedFile decodes and validates a seed document.
func ParseSeedFile(data []byte) (*SeedFile, error) {
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	for i, u := range sf.Users {
		if strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("seed: users[%d]: email is required", i)
		}
		if !strings.Contains(u.Email, "@") {
			return nil, fmt.Errorf("seed: users[%d]: %q is not an email address", i, u.Email)
		}
	}
	return &sf, nil
}

// Bootstrap ensures a superuser exists and applies the seed file when
// configured. Idempotent: existing accounts are left alone.
func Bootstrap(ctx context.Context) error {
	if err := ensureFirstSuperuser(ctx); err != nil {
		return err
	}
	return applySeedFile(ctx)
}

func ensureFirstSuperuser(ctx context.Context) error {
	email := strings.TrimSpace(common.Env("USERDECK_FIRST_SUPERUSER", ""))
	if email == "" {
		return nil
	}
	n, err := database.CountSuperusers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	pass, err := common.EnvOrFile("USERDECK_FIRST_SUPERUSER_PASSWORD", "USERDECK_FIRST_SUPERUSER_PASSWORD_FILE")
	if err != nil {
		return err
	}
	if pass == "" {
		return errors.New("USERDECK_FIRST_SUPERUSER set but no password provided")
	}
	hashed, err := HashPassword(pass)
	if err != nil {
		return fmt.Errorf("first superuser: %w", err)
	}
	if _, err := database.CreateUser(ctx, email, "", hashed, true, true); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil
		}
		return err
	}
	common.InfoLog("bootstrap: created first superuser %s", email)
	return nil
}

func applySeedFile(ctx context.Context) error {
	path := strings.TrimSpace(common.Env("USERDECK_SEED_FILE", ""))
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	sf, err := ParseSeedFile(data)
	if err != nil {
		return err
	}

	var created int
	for _, su := range sf.Users {
		hashed := ""
		if su.Password != "" {
			if hashed, err = HashPassword(su.Password); err != nil {
				return fmt.Errorf("seed: %s: %w", su.Email, err)
			}
		}
		active := true
		if su.IsActive != nil {
			active = *su.IsActive
		}
		if _, err := database.CreateUser(ctx, su.Email, su.FullName, hashed, active, su.IsSuperuser); err != nil {
			if errors.Is(err, database.ErrEmailTaken) {
				continue
			}
			return fmt.Errorf("seed: %s: %w", su.Email, err)
		}
		created++
	}
	common.InfoLog("bootstrap: seed applied file=%s users=%d created=%d", path, len(sf.Users), created)
	return nil
}
