package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	characterColumns = `id, name, show_name, personality, speech_pattern, themes, system_prompt, voice_config, avatar_url, created_at`
	scenarioColumns  = `id, type, name, description, structure, example_prompt, icon, created_at`
)

func ListCharacters(ctx context.Context) ([]db.Character, error) {
	var characters []db.Character
	if err := db.DB.SelectContext(ctx, &characters, `SELECT `+characterColumns+` FROM characters ORDER BY name`); err != nil {
		return nil, fmt.Errorf("error listing characters: %w", err)
	}
	return characters, nil
}

// FindCharacterByID returns nil, nil when the character does not exist.
func FindCharacterByID(ctx context.Context, id uuid.UUID) (*db.Character, error) {
	character := &db.Character{}
	err := db.DB.GetContext(ctx, character, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Character with ID '%s' not found.", id.String())
			return nil, nil
		}
		return nil, fmt.Errorf("error finding character by ID: %w", err)
	}
	return character, nil
}

func ListScenarios(ctx context.Context) ([]db.Scenario, error) {
	var scenarios []db.Scenario
	if err := db.DB.SelectContext(ctx, &scenarios, `SELECT `+scenarioColumns+` FROM scenarios ORDER BY name`); err != nil {
		return nil, fmt.Errorf("error listing scenarios: %w", err)
	}
	return scenarios, nil
}

// FindScenarioByType looks a scenario up by its type key. Clips store the key,
// not a foreign key, so a stale key shows up here as nil, nil.
func FindScenarioByType(ctx context.Context, scenarioType string) (*db.Scenario, error) {
	scenario := &db.Scenario{}
	err := db.DB.GetContext(ctx, scenario, `SELECT `+scenarioColumns+` FROM scenarios WHERE type = $1`, scenarioType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Scenario of type '%s' not found.", scenarioType)
			return nil, nil
		}
		return nil, fmt.Errorf("error finding scenario by type: %w", err)
	}
	return scenario, nil
}

// SeedCatalog installs the reference characters and scenarios. Existing rows
// are left untouched, so it is safe to run on every start.
func SeedCatalog(ctx context.Context, catalog *db.SeedCatalog) error {
	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for i := range catalog.Characters {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO characters (name, show_name, personality, speech_pattern, themes, system_prompt, voice_config, avatar_url)
			VALUES (:name, :show_name, :personality, :speech_pattern, :themes, :system_prompt, :voice_config, :avatar_url)
			ON CONFLICT (name) DO NOTHING`, &catalog.Characters[i])
		if err != nil {
			return fmt.Errorf("seed character %s: %w", catalog.Characters[i].Name, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	for i := range catalog.Scenarios {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO scenarios (type, name, description, structure, example_prompt, icon)
			VALUES (:type, :name, :description, :structure, :example_prompt, :icon)
			ON CONFLICT (type) DO NOTHING`, &catalog.Scenarios[i])
		if err != nil {
			return fmt.Errorf("seed scenario %s: %w", catalog.Scenarios[i].Type, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	if inserted > 0 {
		log.Infof("Seeded %d catalog rows.", inserted)
	} else {
		log.Info("Catalog already seeded.")
	}
	return nil
}
