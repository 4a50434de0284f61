package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"scan-licences/internal/logger"
	"scan-licences/internal/model"
)

type operatorSeed struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

type operatorStore interface {
	Put(ctx context.Context, email, name, password string, admin bool) (*model.Operator, error)
}

// loadSeeds reads a file of the form
//
//	operators:
//	  - email: desk@club.fr
//	    password: ...
//	    admin: true
func loadSeeds(path string) ([]operatorSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc struct {
		Operators []operatorSeed `yaml:"operators"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Operators, nil
}

func seedOperators(ctx context.Context, store operatorStore, ops []operatorSeed) error {
	for _, o := range ops {
		if !strings.Contains(o.Email, "@") || len(o.Password) < 8 {
			return fmt.Errorf("operator %q: need an email and a password of 8+ characters", o.Email)
		}
		name := o.Name
		if name == "" {
			name, _, _ = strings.Cut(o.Email, "@")
		}
		op, err := store.Put(ctx, o.Email, name, o.Password, o.Admin)
		if err != nil {
			return fmt.Errorf("put %s: %w", o.Email, err)
		}
		logger.Info("dbinit: operator allow-listed", "id", op.ID, "email", op.Email, "admin", op.Admin)
	}
	return nil
}
