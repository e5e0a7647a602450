package seeding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"foodgram-backend/entities"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type (
	ingredientRow struct {
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
	}

	tagRow struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
)

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Seed loads tags.json and ingredients.json from dataDir. Rows that
// already exist are skipped, so reruns are safe.
func Seed(db *gorm.DB, dataDir string) error {
	if err := seedTags(db, filepath.Join(dataDir, "tags.json")); err != nil {
		return err
	}
	if err := seedIngredients(db, filepath.Join(dataDir, "ingredients.json")); err != nil {
		return err
	}
	return nil
}

func seedTags(db *gorm.DB, path string) error {
	var rows []tagRow
	if err := readJSON(path, &rows); err != nil {
		return fmt.Errorf("reading tags: %w", err)
	}

	tags := make([]*entities.Tag, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, &entities.Tag{
			ID:   uuid.New(),
			Name: row.Name,
			Slug: row.Slug,
		})
	}
	if len(tags) == 0 {
		return nil
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error; err != nil {
		return fmt.Errorf("seeding tags: %w", err)
	}

	fmt.Printf("Seeded %d tags\n", len(tags))
	return nil
}

func seedIngredients(db *gorm.DB, path string) error {
	var rows []ingredientRow
	if err := readJSON(path, &rows); err != nil {
		return fmt.Errorf("reading ingredients: %w", err)
	}

	ingredients := make([]*entities.Ingredient, 0, len(rows))
	for _, row := range rows {
		ingredients = append(ingredients, &entities.Ingredient{
			ID:              uuid.New(),
			Name:            row.Name,
			MeasurementUnit: row.MeasurementUnit,
		})
	}
	if len(ingredients) == 0 {
		return nil
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&ingredients, 500).Error; err != nil {
		return fmt.Errorf("seeding ingredients: %w", err)
	}

	fmt.Printf("Seeded %d ingredients\n", len(ingredients))
	return nil
}
