package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/google/uuid"

	"github.com/nitematch/nitematch/internal/config"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/matching"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/telemetry"
)

var aliases = []string{
	"Night Owl", "Lantern", "Quiet Storm", "Paper Moon", "Ember", "Saltwater",
	"Velvet", "North Star", "Marigold", "Static", "Juniper", "Low Tide",
}

func main() {
	count := flag.Int("n", 20, "number of profiles to create")
	seed := flag.Int64("seed", 1, "random seed for answers")
	flag.Parse()

	if err := run(*count, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(count int, seed int64) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := telemetry.InitGlobalLogger(&cfg.Log); err != nil {
		return err
	}

	ctx := context.Background()
	logger := telemetry.GetContextualLogger(ctx).WithField("operation", "seed")

	db, err := database.NewConnection(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	store := database.NewProfileStore(db)
	rng := rand.New(rand.NewSource(seed))
	created, skipped := 0, 0

	for i := 0; i < count; i++ {
		gender := matching.Male
		if i%2 == 1 {
			gender = matching.Female
		}
		email := fmt.Sprintf("seed-%03d@%s", i, cfg.EmailDomain)

		vectors, err := questionnaire.Encode(questionnaire.Current, randomAnswers(rng, questionnaire.Current))
		if err != nil {
			return err
		}
		profile := &database.Profile{
			ID:               uuid.New().String(),
			Alias:            fmt.Sprintf("%s %d", aliases[i%len(aliases)], i),
			Gender:           string(gender),
			EmailFingerprint: identity.Fingerprint(email),
			ContactEmail:     &email,
			ContactHandle:    fmt.Sprintf("@seed%03d", i),
			ShareContact:     i%3 != 0,
			Note:             "seeded for local testing",
		}
		profile.SetVectors(vectors)

		if err := store.Create(ctx, profile); err != nil {
			if stderrors.Is(err, database.ErrDuplicateFingerprint) {
				skipped++
				continue
			}
			return err
		}
		created++
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"created": created,
		"skipped": skipped,
		"total":   total,
	}).Info("Seeding completed")
	return nil
}

// randomAnswers picks a random label for every question of s
func randomAnswers(rng *rand.Rand, s questionnaire.Schema) questionnaire.Answers {
	answers := questionnaire.Answers{}
	for _, section := range [][]questionnaire.Question{s.Psych, s.Interest, s.Situation} {
		for _, q := range section {
			labels := q.Labels()
			answers[q.Key] = labels[rng.Intn(len(labels))]
		}
	}
	return answers
}
