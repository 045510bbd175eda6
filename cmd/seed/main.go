// Package main seeds Firestore, usually the emulator, with groups, users
// and memberships from a YAML fixture so triggers can be exercised locally.
//
// Writes use Set, so running the command twice leaves the same documents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/infrastructure"
	"koinonia.app/notifier/internal/pkg/logger"
)

func main() {
	fixturePath := flag.String("fixture", "config/seed.yaml", "YAML fixture to load")
	flag.Parse()

	if err := run(*fixturePath); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run(fixturePath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	fixture, err := parseFixture(raw)
	if err != nil {
		return fmt.Errorf("parse fixture %s: %w", fixturePath, err)
	}

	ctx := context.Background()
	fb, err := infrastructure.NewFirebaseClients(ctx, cfg.Firebase)
	if err != nil {
		return fmt.Errorf("init firebase: %w", err)
	}
	defer fb.Close()

	logger.Info("Starting data seeding...",
		zap.String("fixture", fixturePath),
		zap.String("emulator", cfg.Firebase.EmulatorHost),
	)
	if err := apply(ctx, firestoreSetter{client: fb.Firestore}, fixture.writes()); err != nil {
		return err
	}
	logger.Info("Data seeding completed successfully",
		zap.Int("users", len(fixture.Users)),
		zap.Int("groups", len(fixture.Groups)),
	)
	return nil
}

// Fixture is the seed file layout.
type Fixture struct {
	Users  []domain.User  `yaml:"users"`
	Groups []FixtureGroup `yaml:"groups"`
}

// FixtureGroup is a group with its members.
type FixtureGroup struct {
	domain.Group `yaml:",inline"`
	Members      []FixtureMember `yaml:"members"`
}

// FixtureMember is a group member. Preferences become the member's
// users/{uid}/groups entry; omit them to leave every switch untouched.
type FixtureMember struct {
	domain.Member `yaml:",inline"`
	Preferences   *domain.NotificationPreferences `yaml:"notificationPreferences,omitempty"`
}

func parseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	users := make(map[string]struct{}, len(f.Users))
	for _, u := range f.Users {
		if u.ID == "" {
			return errors.New("user without id")
		}
		if _, dup := users[u.ID]; dup {
			return fmt.Errorf("duplicate user %q", u.ID)
		}
		users[u.ID] = struct{}{}
	}

	groups := make(map[string]struct{}, len(f.Groups))
	for _, g := range f.Groups {
		if g.ID == "" {
			return errors.New("group without id")
		}
		if _, dup := groups[g.ID]; dup {
			return fmt.Errorf("duplicate group %q", g.ID)
		}
		groups[g.ID] = struct{}{}
		for _, m := range g.Members {
			if _, ok := users[m.ID]; !ok {
				return fmt.Errorf("group %q member %q is not a fixture user", g.ID, m.ID)
			}
		}
	}
	return nil
}

// docWrite is one document Set.
type docWrite struct {
	Path string
	Data any
}

// writes lists the documents in dependency order: users, groups, then
// member and membership entries.
func (f *Fixture) writes() []docWrite {
	var out []docWrite
	for _, u := range f.Users {
		out = append(out, docWrite{Path: path.Join("users", u.ID), Data: u})
	}
	for _, g := range f.Groups {
		out = append(out, docWrite{Path: path.Join("groups", g.ID), Data: g.Group})
		for _, m := range g.Members {
			out = append(out,
				docWrite{Path: path.Join("groups", g.ID, "members", m.ID), Data: m.Member},
				docWrite{
					Path: path.Join("users", m.ID, "groups", g.ID),
					Data: domain.GroupMembership{GroupID: g.ID, NotificationPreferences: m.Preferences},
				},
			)
		}
	}
	return out
}

type docSetter interface {
	Set(ctx context.Context, docPath string, data any) error
}

type firestoreSetter struct {
	client *firestore.Client
}

func (s firestoreSetter) Set(ctx context.Context, docPath string, data any) error {
	_, err := s.client.Doc(docPath).Set(ctx, data)
	return err
}

func apply(ctx context.Context, setter docSetter, writes []docWrite) error {
	for _, w := range writes {
		if err := setter.Set(ctx, w.Path, w.Data); err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
		logger.Debug("Seeded document", zap.String("path", w.Path))
	}
	return nil
}
